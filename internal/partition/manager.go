// Package partition owns the fixed set of firmware slots and every state
// transition that affects which image boots next. All such transitions funnel
// into a single atomic boot record write.
package partition

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ishmatuaulia/thermoagent/internal/bootrecord"
	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

var (
	// ErrSlotBusy is returned when a session already targets the slot.
	ErrSlotBusy = errors.New("slot busy: update session already in progress")
	// ErrNoCandidate signals a boot record invariant breach: no inactive
	// non-factory slot is available. This is fatal for updates.
	ErrNoCandidate = errors.New("no candidate slot available")
	// ErrNoSession is returned by operations on a session that is no longer
	// the in-progress one (e.g. a second commit).
	ErrNoSession = errors.New("no such in-progress session")
	// ErrNotPendingVerify guards confirm/revert outside a verification window.
	ErrNotPendingVerify = errors.New("active slot is not pending verification")
	// ErrNotApproved rejects commit before validator approval.
	ErrNotApproved = errors.New("session not completed and approved")
)

// Restarter triggers a device restart after a boot target change.
type Restarter interface {
	Restart(reason string)
}

// RestartFunc adapts a function to the Restarter interface.
type RestartFunc func(reason string)

func (f RestartFunc) Restart(reason string) { f(reason) }

// Manager enforces the slot role/state invariants: exactly one active slot,
// at most one candidate, and the active slot always bootable.
type Manager struct {
	mu            sync.Mutex
	dev           flash.Device
	store         *bootrecord.Store
	rec           bootrecord.Record
	slots         map[flash.SlotID]*flash.Slot
	sess          *Session
	restarter     Restarter
	confirmWindow time.Duration
	recovered     bool
	now           func() time.Time
}

// New loads the boot record and builds the slot table. A missing record means
// first boot (factory active); a corrupt record falls back to the factory
// slot as last resort and rewrites a clean record.
func New(dev flash.Device, store *bootrecord.Store, restarter Restarter, confirmWindow time.Duration) (*Manager, error) {
	m := &Manager{
		dev:           dev,
		store:         store,
		restarter:     restarter,
		confirmWindow: confirmWindow,
		now:           time.Now,
	}
	rec, err := store.Load()
	switch {
	case err == nil:
		m.rec = rec
	case errors.Is(err, bootrecord.ErrNoRecord):
		m.rec = bootrecord.Default()
		if err := store.Save(m.rec); err != nil {
			return nil, fmt.Errorf("write initial boot record: %w", err)
		}
	case errors.Is(err, bootrecord.ErrCorrupt):
		slog.Error("boot record corrupt, falling back to factory slot", "error", err)
		m.rec = bootrecord.Default()
		m.recovered = true
		if err := store.Save(m.rec); err != nil {
			return nil, fmt.Errorf("rewrite boot record after corruption: %w", err)
		}
	default:
		return nil, fmt.Errorf("load boot record: %w", err)
	}
	m.buildSlots()
	return m, nil
}

func (m *Manager) buildSlots() {
	m.slots = make(map[flash.SlotID]*flash.Slot, 3)
	for _, id := range []flash.SlotID{flash.Factory, flash.SlotA, flash.SlotB} {
		s := &flash.Slot{ID: id, Capacity: m.dev.Capacity(id)}
		switch {
		case id == m.rec.ActiveSlot:
			s.Role = flash.RoleActive
			if m.rec.PendingVerify {
				s.State = flash.StatePendingVerify
			} else {
				s.State = flash.StateConfirmed
			}
		case id == flash.Factory:
			s.Role = flash.RoleFactory
			s.State = flash.StateConfirmed
		case id == m.rec.PreviousGood:
			s.Role = flash.RoleInactive
			s.State = flash.StateValid
		default:
			s.Role = flash.RoleInactive
			s.State = flash.StateEmpty
		}
		m.slots[id] = s
	}
}

// Recovered reports whether a corrupt boot record forced a factory fallback.
func (m *Manager) Recovered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovered
}

// Record returns a copy of the current boot record.
func (m *Manager) Record() bootrecord.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

// Slots returns a snapshot of all slot states.
func (m *Manager) Slots() []flash.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]flash.Slot, 0, len(m.slots))
	for _, id := range []flash.SlotID{flash.Factory, flash.SlotA, flash.SlotB} {
		out = append(out, *m.slots[id])
	}
	return out
}

// Capacity reports the physical capacity of a slot.
func (m *Manager) Capacity(id flash.SlotID) uint64 { return m.dev.Capacity(id) }

// Session returns the in-progress update session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// SelectCandidate returns the inactive, non-factory slot the next image
// should be written to.
func (m *Manager) SelectCandidate() (flash.SlotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var id flash.SlotID
	switch m.rec.ActiveSlot {
	case flash.SlotA:
		id = flash.SlotB
	default:
		// slot B active, or factory active on a fresh/recovered device
		id = flash.SlotA
	}
	if r := m.slots[id].Role; r == flash.RoleActive || r == flash.RoleCandidate {
		return 0, fmt.Errorf("%w: %s already %s", ErrNoCandidate, id, r)
	}
	return id, nil
}

// BeginWrite erases the slot and opens an update session targeting it.
func (m *Manager) BeginWrite(id flash.SlotID, meta flash.ImageMeta) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return nil, ErrSlotBusy
	}
	slot := m.slots[id]
	if slot == nil || slot.Role == flash.RoleActive || slot.Role == flash.RoleFactory {
		return nil, fmt.Errorf("%w: cannot write %s", ErrNoCandidate, id)
	}
	if err := m.dev.Erase(id); err != nil {
		return nil, fmt.Errorf("erase %s: %w", id, err)
	}
	slot.Role = flash.RoleCandidate
	slot.State = flash.StateWriting
	slot.Meta = meta
	m.sess = newSession(id, meta)
	slog.Info("update session opened", "session", m.sess.ID, "slot", id, "declared_size", meta.DeclaredSize, "version", meta.VersionTag)
	return m.sess, nil
}

// Append physically writes chunk at the session's current write position and
// folds it into the running digest. Sequencing is enforced by the receiver.
func (m *Manager) Append(s *Session, chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s != m.sess {
		return ErrNoSession
	}
	if s.status != SessionInProgress {
		return fmt.Errorf("session %s is %s", s.ID, s.status)
	}
	if _, err := m.dev.WriteAt(s.Slot, int64(s.bytesWritten), chunk); err != nil {
		return err
	}
	_, _ = s.digest.Write(chunk)
	s.bytesWritten += uint64(len(chunk))
	if s.bytesWritten == s.Meta.DeclaredSize {
		s.status = SessionCompleted
		m.slots[s.Slot].State = flash.StateWritten
	}
	return nil
}

// ReadImage reads back candidate slot contents for header validation.
func (m *Manager) ReadImage(s *Session, off int64, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s != m.sess {
		return 0, ErrNoSession
	}
	return m.dev.ReadAt(s.Slot, off, p)
}

// Approve marks the session as accepted by the validator.
func (m *Manager) Approve(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s != m.sess {
		return ErrNoSession
	}
	if s.status != SessionCompleted {
		return ErrNotApproved
	}
	s.approved = true
	m.slots[s.Slot].State = flash.StateValid
	return nil
}

// Commit flips the boot target to the candidate slot, marks it pending
// verification with a bounded confirmation deadline, persists the boot record
// atomically, and restarts the device. Calling it again for the same session
// fails with ErrNoSession and changes nothing.
func (m *Manager) Commit(s *Session) error {
	m.mu.Lock()
	if s == nil || s != m.sess {
		m.mu.Unlock()
		return ErrNoSession
	}
	if s.status != SessionCompleted || !s.approved {
		m.mu.Unlock()
		return ErrNotApproved
	}
	prevActive := m.rec.ActiveSlot
	next := m.rec
	next.PreviousGood = prevActive
	next.ActiveSlot = s.Slot
	next.PendingVerify = true
	next.ConfirmDeadline = m.now().Add(m.confirmWindow).Truncate(time.Second).UTC()
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist boot record: %w", err)
	}
	m.rec = next
	m.slots[s.Slot].Role = flash.RoleActive
	m.slots[s.Slot].State = flash.StatePendingVerify
	if old := m.slots[prevActive]; old != nil && prevActive != s.Slot {
		if prevActive == flash.Factory {
			old.Role = flash.RoleFactory
		} else {
			old.Role = flash.RoleInactive
		}
	}
	m.sess = nil
	restarter := m.restarter
	m.mu.Unlock()

	slog.Info("boot target switched", "slot", s.Slot, "previous", prevActive, "deadline", next.ConfirmDeadline)
	restarter.Restart("firmware update committed")
	return nil
}

// Revert switches back to the previous good slot after a failed verification
// window, demotes the failed image to invalid, and restarts.
func (m *Manager) Revert() error {
	m.mu.Lock()
	if !m.rec.PendingVerify {
		m.mu.Unlock()
		return ErrNotPendingVerify
	}
	failed := m.rec.ActiveSlot
	next := m.rec
	next.ActiveSlot = m.rec.PreviousGood
	next.PendingVerify = false
	next.ConfirmDeadline = time.Time{}
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist boot record: %w", err)
	}
	m.rec = next
	m.slots[failed].State = flash.StateInvalid
	if failed == flash.Factory {
		m.slots[failed].Role = flash.RoleFactory
	} else {
		m.slots[failed].Role = flash.RoleInactive
	}
	good := m.slots[next.ActiveSlot]
	good.Role = flash.RoleActive
	if good.State != flash.StateConfirmed {
		good.State = flash.StateValid
	}
	restarter := m.restarter
	m.mu.Unlock()

	slog.Warn("reverting to previous firmware", "failed", failed, "restored", next.ActiveSlot)
	restarter.Restart("firmware rollback")
	return nil
}

// Confirm records that the newly booted image proved itself healthy.
func (m *Manager) Confirm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rec.PendingVerify {
		return ErrNotPendingVerify
	}
	next := m.rec
	next.PendingVerify = false
	next.ConfirmDeadline = time.Time{}
	next.ConfirmCount++
	if err := m.store.Save(next); err != nil {
		return fmt.Errorf("persist boot record: %w", err)
	}
	m.rec = next
	m.slots[next.ActiveSlot].State = flash.StateConfirmed
	slog.Info("firmware confirmed", "slot", next.ActiveSlot, "confirm_count", next.ConfirmCount)
	return nil
}

// Fail closes the session after a validation reject: the candidate is erased
// and demoted to invalid. The device keeps running its current firmware.
func (m *Manager) Fail(s *Session) error {
	return m.closeSession(s, SessionFailed, flash.StateInvalid)
}

// Abort closes the session after a transfer interruption or operator cancel,
// erasing the candidate.
func (m *Manager) Abort(s *Session) error {
	return m.closeSession(s, SessionAborted, flash.StateEmpty)
}

func (m *Manager) closeSession(s *Session, status SessionStatus, state flash.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s != m.sess {
		return ErrNoSession
	}
	s.status = status
	slot := m.slots[s.Slot]
	if err := m.dev.Erase(s.Slot); err != nil {
		slog.Error("candidate erase failed", "slot", s.Slot, "error", err)
	}
	slot.State = state
	slot.Role = flash.RoleInactive
	slot.Meta = flash.ImageMeta{}
	m.sess = nil
	slog.Info("update session closed", "session", s.ID, "status", status, "slot", s.Slot)
	return nil
}
