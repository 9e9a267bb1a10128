package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/superfly/fsm"
)

// Coordinator serializes update runs. At most one pipeline is in flight; a
// second trigger gets ErrUpdateBusy synchronously, before any slot is touched.
type Coordinator struct {
	manager *fsm.Manager
	machine *Machine
	start   fsm.Start[Trigger, Result]
	baseCtx context.Context

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	last    *Result
}

// NewCoordinator opens the pipeline journal at dbPath and registers the
// machine. baseCtx bounds the lifetime of every run.
func NewCoordinator(baseCtx context.Context, machine *Machine, dbPath string) (*Coordinator, error) {
	manager, err := fsm.New(fsm.Config{DBPath: dbPath})
	if err != nil {
		return nil, fmt.Errorf("open update journal: %w", err)
	}
	start, _, err := machine.Register(baseCtx, manager)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		manager: manager,
		machine: machine,
		start:   start,
		baseCtx: baseCtx,
	}, nil
}

// Start launches the pipeline for trig and returns the run key. The run
// continues in the background; poll Busy or LastResult for the outcome.
func (c *Coordinator) Start(trig Trigger) (string, error) {
	if err := trig.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return "", ErrUpdateBusy
	}
	runCtx, cancel := context.WithCancel(c.baseCtx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	key := uuid.NewString()
	resp := &Result{}
	version, err := c.start(runCtx, key, fsm.NewRequest(&trig, resp))
	if err != nil {
		cancel()
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		return "", fmt.Errorf("start update run: %w", err)
	}
	slog.Info("update run started", "key", key, "location", trig.ImageLocation)

	go func() {
		defer cancel()
		if err := c.manager.Wait(c.baseCtx, version); err != nil {
			slog.Error("update run ended with error", "key", key, "error", err)
		}
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.last = resp
		c.mu.Unlock()
	}()
	return key, nil
}

// Abort cancels the in-flight run. The transfer unwinds through the pipeline
// failure path, which erases the candidate slot.
func (c *Coordinator) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.cancel == nil {
		return errors.New("no update in progress")
	}
	slog.Info("update abort requested")
	c.cancel()
	return nil
}

// Busy reports whether a run is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastResult returns a copy of the most recent finished run, or nil.
func (c *Coordinator) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

// Shutdown drains the journal manager.
func (c *Coordinator) Shutdown(timeout time.Duration) {
	c.manager.Shutdown(timeout)
}
