package agent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishmatuaulia/thermoagent/internal/config"
)

func testConfig(t *testing.T) *config.FileConfig {
	t.Helper()
	dir := t.TempDir()
	return &config.FileConfig{
		Device: config.DeviceConfig{ID: "dev-1", FwTitle: "thermoagent", FwVersion: "1.0.0"},
		Sensor: config.SensorConfig{Simulate: true, SampleInterval: time.Second},
		MQTT:   config.MQTTConfig{BrokerURL: "tcp://localhost:1883", ClientID: "dev-1"},
		Update: config.UpdateConfig{
			InMemory:      true,
			SlotCapacity:  4096,
			RecordPath:    filepath.Join(dir, "boot.rec"),
			JournalPath:   filepath.Join(dir, "update.db"),
			ConfirmWindow: time.Minute,
		},
		Server: config.ServerConfig{Listen: ":0"},
	}
}

func TestNewBuildsStorageSide(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	st := a.Status()
	assert.Equal(t, "dev-1", st.DeviceID)
	assert.Equal(t, "1.0.0", st.FwVersion)
	assert.Equal(t, "factory", st.ActiveSlot)
	assert.False(t, st.PendingVerify)
	assert.Len(t, st.Slots, 3)
	assert.False(t, st.UpdateBusy)
}

func TestStatusSurvivesRestartedRecord(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	_ = a

	// a second agent over the same record path sees the persisted state
	b, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "factory", b.Status().ActiveSlot)
}

func TestUpdateRejectedBeforeRun(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = a.StartUpdate(validTestTrigger())
	assert.Error(t, err)
	assert.Error(t, a.AbortUpdate())
}

func TestRestartUsesExitCode(t *testing.T) {
	var code int
	orig := exitFunc
	exitFunc = func(c int) { code = c }
	defer func() { exitFunc = orig }()

	restart("test")
	assert.Equal(t, RestartExitCode, code)
}
