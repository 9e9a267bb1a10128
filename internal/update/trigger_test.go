package update

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	started []Trigger
	aborts  int
	err     error
}

func (f *fakeTarget) Start(trig Trigger) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.started = append(f.started, trig)
	return "run-1", nil
}

func (f *fakeTarget) Abort() error {
	f.aborts++
	return f.err
}

func validTrigger() Trigger {
	sum := sha256.Sum256([]byte("image"))
	return Trigger{
		ImageLocation:  "https://example.com/fw.bin",
		ExpectedSize:   1024,
		ExpectedDigest: hex.EncodeToString(sum[:]),
		VersionTag:     "1.1.0",
	}
}

func TestTriggerValidate(t *testing.T) {
	assert.NoError(t, validTrigger().Validate())

	trig := validTrigger()
	trig.ImageLocation = ""
	assert.Error(t, trig.Validate())

	trig = validTrigger()
	trig.ExpectedSize = 0
	assert.Error(t, trig.Validate())

	trig = validTrigger()
	trig.ExpectedDigest = "abcd"
	assert.Error(t, trig.Validate())

	trig = validTrigger()
	trig.ExpectedDigest = "zz" + trig.ExpectedDigest[2:]
	assert.Error(t, trig.Validate())
}

func TestListenerDispatchesUpdate(t *testing.T) {
	target := &fakeTarget{}
	l := NewListener(target)

	require.NoError(t, l.handle([]byte(`{
		"command": "update",
		"image_location": "https://example.com/fw.bin",
		"expected_size": 2048,
		"expected_digest": "`+hex.EncodeToString(make([]byte, 32))+`",
		"version_tag": "1.2.0"
	}`)))
	require.Len(t, target.started, 1)
	assert.Equal(t, uint64(2048), target.started[0].ExpectedSize)
	assert.Equal(t, "1.2.0", target.started[0].VersionTag)
}

func TestListenerDefaultsToUpdateCommand(t *testing.T) {
	target := &fakeTarget{}
	l := NewListener(target)

	trig := validTrigger()
	require.NoError(t, l.handle([]byte(`{
		"image_location": "`+trig.ImageLocation+`",
		"expected_size": 1024,
		"expected_digest": "`+trig.ExpectedDigest+`"
	}`)))
	assert.Len(t, target.started, 1)
}

func TestListenerDispatchesAbort(t *testing.T) {
	target := &fakeTarget{}
	l := NewListener(target)

	require.NoError(t, l.handle([]byte(`{"command":"abort"}`)))
	assert.Equal(t, 1, target.aborts)
}

func TestListenerRejectsBadPayloads(t *testing.T) {
	target := &fakeTarget{}
	l := NewListener(target)

	assert.Error(t, l.handle([]byte(`{not json`)))
	assert.Error(t, l.handle([]byte(`{"command":"reboot"}`)))
	assert.Error(t, l.handle([]byte(`{"command":"update"}`)))
	assert.Empty(t, target.started)
}

func TestListenerPropagatesBusy(t *testing.T) {
	target := &fakeTarget{err: ErrUpdateBusy}
	l := NewListener(target)

	trig := validTrigger()
	err := l.handle([]byte(`{
		"image_location": "` + trig.ImageLocation + `",
		"expected_size": 1024,
		"expected_digest": "` + trig.ExpectedDigest + `"
	}`))
	assert.ErrorIs(t, err, ErrUpdateBusy)
}

func TestReasonLabels(t *testing.T) {
	assert.Equal(t, "digest_mismatch", Reason(ErrDigestMismatch))
	assert.Equal(t, "sequence_error", Reason(ErrSequence))
	assert.Equal(t, "internal", Reason(assert.AnError))
}
