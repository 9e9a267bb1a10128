// Package guard decides, once per boot, whether a freshly flashed firmware
// image is trusted. An image gets exactly one verification window per flash:
// prove liveness before the persisted deadline or be rolled back.
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ishmatuaulia/thermoagent/internal/metrics"
	"github.com/ishmatuaulia/thermoagent/internal/partition"
)

// Outcome is the guard's terminal state for this boot.
type Outcome int

const (
	// OutcomeNoop means the active slot was already confirmed; nothing to do.
	OutcomeNoop Outcome = iota
	// OutcomeConfirmed means the health signal arrived before the deadline.
	OutcomeConfirmed
	// OutcomeRolledBack means the deadline elapsed and the previous firmware
	// was restored.
	OutcomeRolledBack
	// OutcomeInterrupted means the agent shut down before a decision.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRolledBack:
		return "rolled_back"
	case OutcomeInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// Guard watches one boot's verification window.
type Guard struct {
	pm     *partition.Manager
	health <-chan struct{}
	now    func() time.Time
}

// New builds a guard listening on the one-shot health channel (closed on the
// first successful telemetry publish).
func New(pm *partition.Manager, health <-chan struct{}) *Guard {
	return &Guard{pm: pm, health: health, now: time.Now}
}

// Run blocks until the guard reaches a terminal state. The confirmation
// deadline comes from the persisted boot record, so a watchdog reset during
// the window resumes with the original deadline rather than a fresh one.
func (g *Guard) Run(ctx context.Context) (Outcome, error) {
	rec := g.pm.Record()
	if !rec.PendingVerify {
		return OutcomeNoop, nil
	}

	remaining := rec.ConfirmDeadline.Sub(g.now())
	slog.Info("awaiting firmware confirmation", "slot", rec.ActiveSlot, "deadline", rec.ConfirmDeadline, "remaining", remaining)
	if remaining <= 0 {
		// the window already expired across the reboot
		return g.rollBack()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-g.health:
		if err := g.pm.Confirm(); err != nil {
			return OutcomeInterrupted, err
		}
		metrics.IncConfirm()
		return OutcomeConfirmed, nil
	case <-timer.C:
		return g.rollBack()
	case <-ctx.Done():
		return OutcomeInterrupted, ctx.Err()
	}
}

func (g *Guard) rollBack() (Outcome, error) {
	slog.Warn("firmware failed to prove liveness, rolling back")
	if err := g.pm.Revert(); err != nil {
		return OutcomeInterrupted, err
	}
	metrics.IncRollback()
	return OutcomeRolledBack, nil
}
