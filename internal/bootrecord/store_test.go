package bootrecord

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

func sampleRecord() Record {
	return Record{
		ActiveSlot:      flash.SlotA,
		PreviousGood:    flash.Factory,
		PendingVerify:   true,
		ConfirmDeadline: time.Unix(1767225600, 0).UTC(),
		ConfirmCount:    7,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := sampleRecord()
	got, err := Decode(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	buf := sampleRecord().Encode()

	t.Run("bit flip", func(t *testing.T) {
		for i := range buf {
			mutated := append([]byte(nil), buf...)
			mutated[i] ^= 0x01
			_, err := Decode(mutated)
			assert.ErrorIs(t, err, ErrCorrupt, "offset %d", i)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(buf[:EncodedSize-1])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("bad slot id", func(t *testing.T) {
		r := sampleRecord()
		r.ActiveSlot = flash.SlotID(9)
		_, err := Decode(r.Encode())
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestStoreLoadSave(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "boot.rec"))

	_, err := st.Load()
	assert.ErrorIs(t, err, ErrNoRecord)

	r := sampleRecord()
	require.NoError(t, st.Save(r))
	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

// A crash while the replacement record is still being written must leave the
// previous record observable: the partial write only ever touches the temp
// file, so the load path sees the old bytes until the rename lands.
func TestStoreCrashAtomicity(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "boot.rec"))

	old := Default()
	old.ConfirmCount = 1
	require.NoError(t, st.Save(old))

	updated := sampleRecord()
	encoded := updated.Encode()

	for cut := 0; cut <= len(encoded); cut++ {
		// simulate power loss after cut bytes of the new record hit the
		// temp file and before the rename
		require.NoError(t, os.WriteFile(st.Path()+".tmp", encoded[:cut], 0o644))

		got, err := st.Load()
		require.NoError(t, err, "cut %d", cut)
		assert.Equal(t, old, got, "cut %d", cut)
	}

	// the complete temp file renamed into place yields exactly the new record
	require.NoError(t, os.WriteFile(st.Path()+".tmp", encoded, 0o644))
	require.NoError(t, os.Rename(st.Path()+".tmp", st.Path()))
	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestStoreRejectsTornRecord(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "boot.rec"))
	require.NoError(t, os.WriteFile(st.Path(), []byte("garbage-bytes-here-not-a-record"), 0o644))
	_, err := st.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}
