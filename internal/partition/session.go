package partition

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/google/uuid"

	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

// SessionStatus is the lifecycle state of an update session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionAborted    SessionStatus = "aborted"
)

// Session tracks one in-flight firmware transfer into the candidate slot.
// It records which slot it targets; the Manager owns the slot itself, and all
// mutation goes through Manager methods, which hold the manager lock.
type Session struct {
	ID   string
	Slot flash.SlotID
	Meta flash.ImageMeta

	bytesWritten uint64
	digest       hash.Hash
	status       SessionStatus
	approved     bool
}

func newSession(slot flash.SlotID, meta flash.ImageMeta) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Slot:   slot,
		Meta:   meta,
		digest: sha256.New(),
		status: SessionInProgress,
	}
}

func (s *Session) Status() SessionStatus { return s.status }

// BytesWritten returns the monotonically advancing write position.
func (s *Session) BytesWritten() uint64 { return s.bytesWritten }

// ExpectedSize is the image size declared by the update trigger.
func (s *Session) ExpectedSize() uint64 { return s.Meta.DeclaredSize }

// Digest returns the hex sha256 folded over all accepted chunks so far.
func (s *Session) Digest() string {
	return hex.EncodeToString(s.digest.Sum(nil))
}
