package update

import (
	"fmt"
	"log/slog"

	"github.com/ishmatuaulia/thermoagent/internal/partition"
)

// Receiver streams firmware bytes into the candidate slot. Chunks must
// arrive strictly in order with no gaps or overlaps: an interrupted transfer
// restarts from zero rather than risking an inconsistent digest across a
// power cycle.
type Receiver struct {
	pm *partition.Manager
}

func NewReceiver(pm *partition.Manager) *Receiver { return &Receiver{pm: pm} }

// Write accepts the chunk at the given offset. The offset must equal the
// session's current write position exactly; any mismatch fails the session
// with ErrSequence and the caller must abort it.
func (r *Receiver) Write(sess *partition.Session, offset uint64, chunk []byte) error {
	if offset != sess.BytesWritten() {
		return fmt.Errorf("%w: got offset %d, want %d", ErrSequence, offset, sess.BytesWritten())
	}
	if offset+uint64(len(chunk)) > sess.ExpectedSize() {
		return fmt.Errorf("%w: chunk overruns declared size %d", ErrSequence, sess.ExpectedSize())
	}
	if err := r.pm.Append(sess, chunk); err != nil {
		return err
	}
	if sess.Status() == partition.SessionCompleted {
		slog.Info("image transfer complete", "session", sess.ID, "bytes", sess.BytesWritten())
	}
	return nil
}
