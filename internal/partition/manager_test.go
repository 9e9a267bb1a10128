package partition

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishmatuaulia/thermoagent/internal/bootrecord"
	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

type fakeRestarter struct {
	reasons []string
}

func (f *fakeRestarter) Restart(reason string) { f.reasons = append(f.reasons, reason) }

func newTestManager(t *testing.T) (*Manager, *fakeRestarter, *bootrecord.Store) {
	t.Helper()
	st := bootrecord.NewStore(filepath.Join(t.TempDir(), "boot.rec"))
	fr := &fakeRestarter{}
	m, err := New(flash.NewMemDevice(1<<20), st, fr, 90*time.Second)
	require.NoError(t, err)
	return m, fr, st
}

func assertOneActive(t *testing.T, m *Manager) {
	t.Helper()
	active := 0
	for _, s := range m.Slots() {
		if s.Role == flash.RoleActive {
			active++
			assert.True(t, s.State.Bootable(), "active slot %s in non-bootable state %s", s.ID, s.State)
		}
	}
	assert.Equal(t, 1, active, "exactly one slot must be active")
}

func completeSession(t *testing.T, m *Manager, payload []byte, version string) *Session {
	t.Helper()
	sum := sha256.Sum256(payload)
	meta := flash.ImageMeta{
		DeclaredSize: uint64(len(payload)),
		Digest:       hex.EncodeToString(sum[:]),
		VersionTag:   version,
	}
	id, err := m.SelectCandidate()
	require.NoError(t, err)
	sess, err := m.BeginWrite(id, meta)
	require.NoError(t, err)
	require.NoError(t, m.Append(sess, payload))
	require.Equal(t, SessionCompleted, sess.Status())
	require.NoError(t, m.Approve(sess))
	return sess
}

func TestFirstBootDefaultsToFactory(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.Equal(t, flash.Factory, m.Record().ActiveSlot)
	assertOneActive(t, m)
}

func TestSelectCandidateAlternates(t *testing.T) {
	m, _, _ := newTestManager(t)

	id, err := m.SelectCandidate()
	require.NoError(t, err)
	assert.Equal(t, flash.SlotA, id, "factory active picks slot A")

	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))
	assert.Equal(t, flash.SlotA, m.Record().ActiveSlot)

	id, err = m.SelectCandidate()
	require.NoError(t, err)
	assert.Equal(t, flash.SlotB, id, "slot A active picks slot B")
}

func TestSelectCandidateFailsWhenCandidateInUse(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	_, err := m.BeginWrite(flash.SlotB, flash.ImageMeta{DeclaredSize: 4})
	require.NoError(t, err)
	_, err = m.SelectCandidate()
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestBeginWriteSlotBusy(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 8})
	require.NoError(t, err)
	_, err = m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 8})
	assert.ErrorIs(t, err, ErrSlotBusy)
}

func TestBeginWriteRejectsActiveSlot(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))
	_, err := m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 8})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestCommitPersistsAndRestarts(t *testing.T) {
	m, fr, st := newTestManager(t)
	now := time.Unix(1756500000, 0).UTC()
	m.now = func() time.Time { return now }

	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	rec, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, flash.SlotA, rec.ActiveSlot)
	assert.Equal(t, flash.Factory, rec.PreviousGood)
	assert.True(t, rec.PendingVerify)
	assert.Equal(t, now.Add(90*time.Second), rec.ConfirmDeadline)
	assert.Equal(t, []string{"firmware update committed"}, fr.reasons)
	assertOneActive(t, m)
}

func TestCommitTwiceIsRejected(t *testing.T) {
	m, fr, _ := newTestManager(t)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	before := m.Record()
	err := m.Commit(sess)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, before, m.Record(), "second commit must not change state")
	assert.Len(t, fr.reasons, 1, "no extra restart")
}

func TestCommitRequiresApproval(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess, err := m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 8})
	require.NoError(t, err)
	require.NoError(t, m.Append(sess, []byte("12345678")))
	err = m.Commit(sess)
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestRevertRestoresPreviousGood(t *testing.T) {
	m, fr, st := newTestManager(t)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	require.NoError(t, m.Revert())
	rec, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, flash.Factory, rec.ActiveSlot)
	assert.False(t, rec.PendingVerify)
	assert.True(t, rec.ConfirmDeadline.IsZero())

	for _, s := range m.Slots() {
		if s.ID == flash.SlotA {
			assert.Equal(t, flash.StateInvalid, s.State, "failed image demoted")
		}
	}
	assert.Equal(t, "firmware rollback", fr.reasons[len(fr.reasons)-1])
	assertOneActive(t, m)
}

func TestRevertWithoutPendingVerify(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Revert(), ErrNotPendingVerify)
}

func TestConfirmClearsPendingVerify(t *testing.T) {
	m, _, st := newTestManager(t)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	require.NoError(t, m.Confirm())
	rec, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, flash.SlotA, rec.ActiveSlot)
	assert.False(t, rec.PendingVerify)
	assert.Equal(t, uint32(1), rec.ConfirmCount)

	for _, s := range m.Slots() {
		if s.ID == flash.SlotA {
			assert.Equal(t, flash.StateConfirmed, s.State)
		}
	}
	assertOneActive(t, m)
}

func TestAbortErasesCandidate(t *testing.T) {
	m, _, _ := newTestManager(t)
	dev := flash.NewMemDevice(1 << 20)
	m.dev = dev
	m.buildSlots()

	sess, err := m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 64})
	require.NoError(t, err)
	require.NoError(t, m.Append(sess, []byte("partial chunk")))
	require.NoError(t, m.Abort(sess))

	assert.Equal(t, SessionAborted, sess.Status())
	assert.Nil(t, m.Session())
	got := make([]byte, 13)
	_, err = dev.ReadAt(flash.SlotA, 0, got)
	require.NoError(t, err)
	for _, b := range got {
		assert.EqualValues(t, flash.ErasedByte, b)
	}
}

func TestFailMarksSlotInvalid(t *testing.T) {
	m, _, _ := newTestManager(t)
	sess, err := m.BeginWrite(flash.SlotA, flash.ImageMeta{DeclaredSize: 4})
	require.NoError(t, err)
	require.NoError(t, m.Append(sess, []byte("abcd")))
	require.NoError(t, m.Fail(sess))

	assert.Equal(t, SessionFailed, sess.Status())
	for _, s := range m.Slots() {
		if s.ID == flash.SlotA {
			assert.Equal(t, flash.StateInvalid, s.State)
		}
	}
	assertOneActive(t, m)
}

func TestCorruptRecordFallsBackToFactory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.rec")
	require.NoError(t, os.WriteFile(path, []byte("not a boot record, definitely"), 0o644))

	m, err := New(flash.NewMemDevice(1<<20), bootrecord.NewStore(path), &fakeRestarter{}, time.Minute)
	require.NoError(t, err)
	assert.True(t, m.Recovered())
	assert.Equal(t, flash.Factory, m.Record().ActiveSlot)
	assertOneActive(t, m)
}

func TestRebootedManagerSeesPendingVerify(t *testing.T) {
	st := bootrecord.NewStore(filepath.Join(t.TempDir(), "boot.rec"))
	fr := &fakeRestarter{}
	dev := flash.NewMemDevice(1 << 20)

	m, err := New(dev, st, fr, time.Minute)
	require.NoError(t, err)
	sess := completeSession(t, m, []byte("image-a"), "1.0.0")
	require.NoError(t, m.Commit(sess))

	// simulate the post-commit reboot: a fresh manager over the same record
	m2, err := New(dev, st, fr, time.Minute)
	require.NoError(t, err)
	rec := m2.Record()
	assert.True(t, rec.PendingVerify)
	assert.Equal(t, flash.SlotA, rec.ActiveSlot)
	for _, s := range m2.Slots() {
		if s.ID == flash.SlotA {
			assert.Equal(t, flash.StatePendingVerify, s.State)
			assert.Equal(t, flash.RoleActive, s.Role)
		}
	}
	assertOneActive(t, m2)
}
