package thermoagent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndStatus(t *testing.T) {
	dir := t.TempDir()
	c := &Config{}
	c.Device.ID = "dev-1"
	c.Device.FwVersion = "1.0.0"
	c.Sensor.Simulate = true
	c.Sensor.SampleInterval = time.Second
	c.MQTT.BrokerURL = "tcp://localhost:1883"
	c.Update.InMemory = true
	c.Update.SlotCapacity = 4096
	c.Update.RecordPath = filepath.Join(dir, "boot.rec")
	c.Update.JournalPath = filepath.Join(dir, "update.db")
	c.Update.ConfirmWindow = time.Minute

	a, err := New(c)
	require.NoError(t, err)

	st := a.Status()
	assert.Equal(t, "dev-1", st.DeviceID)
	assert.Equal(t, "factory", st.ActiveSlot)
}

func TestLoadConfigFacade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[device]
id = "dev-2"
fw_version = "2.0.0"

[mqtt]
broker_url = "tcp://localhost:1883"

[update]
dir = "/tmp/thermoagent-test"
`), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "dev-2", c.Device.ID)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	require.NoError(t, RegisterMetricsDefault())
	require.NoError(t, RegisterMetricsDefault())
}
