// Package update implements the firmware update pipeline: trigger intake,
// streaming the image into the candidate slot, validation, and commit. The
// pipeline runs as a registered state machine so every transition is
// journaled.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/superfly/fsm"

	"github.com/ishmatuaulia/thermoagent/internal/fetch"
	"github.com/ishmatuaulia/thermoagent/internal/history"
	"github.com/ishmatuaulia/thermoagent/internal/metrics"
	"github.com/ishmatuaulia/thermoagent/internal/partition"
	"github.com/ishmatuaulia/thermoagent/internal/telemetry"
)

// Pipeline state names.
const (
	StateSelectSlot = "select_slot"
	StateTransfer   = "transfer"
	StateValidate   = "validate"
	StateCommit     = "commit"
	StateComplete   = "complete"
	StateFailed     = "failed"
)

// Result accumulates across pipeline transitions.
type Result struct {
	SessionID    string
	Slot         string
	BytesWritten uint64
	Digest       string
	Status       string
	ErrorMessage string
}

// StatusReporter pushes firmware state changes to the external messaging
// channel. The telemetry reporter implements it.
type StatusReporter interface {
	ReportFirmwareState(state, detail string)
}

// Machine holds the pipeline dependencies and the single in-flight session.
type Machine struct {
	pm        *partition.Manager
	recv      *Receiver
	validator *Validator
	resolver  *fetch.Resolver
	reporter  StatusReporter
	sinks     []history.Sink
	deviceID  string

	mu   sync.Mutex
	sess *partition.Session
}

func NewMachine(pm *partition.Manager, validator *Validator, resolver *fetch.Resolver, reporter StatusReporter, deviceID string, sinks []history.Sink) *Machine {
	return &Machine{
		pm:        pm,
		recv:      NewReceiver(pm),
		validator: validator,
		resolver:  resolver,
		reporter:  reporter,
		sinks:     sinks,
		deviceID:  deviceID,
	}
}

// Register wires the pipeline states into the FSM manager.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[Trigger, Result], fsm.Resume, error) {
	start, resume, err := fsm.Register[Trigger, Result](manager, "firmware-update").
		Start(StateSelectSlot, m.handleSelectSlot).
		To(StateTransfer, m.handleTransfer).
		To(StateValidate, m.handleValidate).
		To(StateCommit, m.handleCommit).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("register update pipeline: %w", err)
	}
	return start, resume, nil
}

func (m *Machine) session() *partition.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func (m *Machine) setSession(s *partition.Session) {
	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()
}

func (m *Machine) emit(typ history.EventType, sess *partition.Session, detail string) {
	e := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		DeviceID:   m.deviceID,
		Detail:     detail,
	}
	if sess != nil {
		e.SessionID = sess.ID
		e.Slot = sess.Slot.String()
		e.Version = sess.Meta.VersionTag
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := history.Fanout(ctx, m.sinks, e); err != nil {
		slog.Error("history event not recorded", "type", typ, "error", err)
	}
}

// failed tears the session down (mode picks erase semantics), reports the
// failure externally, and aborts the pipeline. Every failure here is local:
// the device keeps running its current firmware.
func (m *Machine) failed(resp *Result, sess *partition.Session, err error, validationReject bool) error {
	if resp != nil {
		resp.Status = "failed"
		resp.ErrorMessage = err.Error()
	}
	if sess != nil {
		if validationReject {
			_ = m.pm.Fail(sess)
			m.emit(history.EventUpdateFailed, sess, err.Error())
		} else {
			_ = m.pm.Abort(sess)
			m.emit(history.EventUpdateAborted, sess, err.Error())
		}
	} else {
		m.emit(history.EventUpdateFailed, nil, err.Error())
	}
	m.setSession(nil)
	metrics.IncUpdateFailure(Reason(err))
	m.reporter.ReportFirmwareState(telemetry.FwStateFailed, err.Error())
	slog.Error("update failed", "error", err)
	return fsm.Abort(err)
}

func (m *Machine) handleSelectSlot(ctx context.Context, req *fsm.Request[Trigger, Result]) (*fsm.Response[Result], error) {
	trig := req.Msg
	resp := req.W.Msg
	if resp == nil {
		resp = &Result{}
	}

	id, err := m.pm.SelectCandidate()
	if err != nil {
		return nil, m.failed(resp, nil, err, false)
	}
	if trig.ExpectedSize > m.pm.Capacity(id) {
		return nil, m.failed(resp, nil, fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, trig.ExpectedSize, m.pm.Capacity(id)), false)
	}
	sess, err := m.pm.BeginWrite(id, trig.Meta())
	if err != nil {
		return nil, m.failed(resp, nil, err, false)
	}
	m.setSession(sess)

	resp.SessionID = sess.ID
	resp.Slot = id.String()
	metrics.IncUpdateStart()
	m.emit(history.EventUpdateStarted, sess, trig.ImageLocation)
	m.reporter.ReportFirmwareState(telemetry.FwStateDownloading, trig.ImageLocation)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleTransfer(ctx context.Context, req *fsm.Request[Trigger, Result]) (*fsm.Response[Result], error) {
	trig := req.Msg
	resp := req.W.Msg
	sess := m.session()
	if resp == nil || sess == nil {
		return nil, fsm.Abort(fmt.Errorf("transfer without open session"))
	}

	fetcher, err := m.resolver.Resolve(trig.ImageLocation)
	if err != nil {
		return nil, m.failed(resp, sess, err, false)
	}
	err = fetcher.Fetch(ctx, trig.ImageLocation, func(c fetch.Chunk) error {
		return m.recv.Write(sess, c.Offset, c.Data)
	})
	if err == nil && sess.Status() != partition.SessionCompleted {
		err = fmt.Errorf("%w: stream ended at %d of %d bytes", ErrTransferInterrupted, sess.BytesWritten(), sess.ExpectedSize())
	}
	if err != nil {
		if Reason(err) == "internal" {
			err = fmt.Errorf("%w: %v", ErrTransferInterrupted, err)
		}
		return nil, m.failed(resp, sess, err, false)
	}

	resp.BytesWritten = sess.BytesWritten()
	resp.Digest = sess.Digest()
	m.reporter.ReportFirmwareState(telemetry.FwStateDownloaded, "")
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleValidate(ctx context.Context, req *fsm.Request[Trigger, Result]) (*fsm.Response[Result], error) {
	resp := req.W.Msg
	sess := m.session()
	if resp == nil || sess == nil {
		return nil, fsm.Abort(fmt.Errorf("validate without open session"))
	}

	if err := m.validator.Validate(sess); err != nil {
		return nil, m.failed(resp, sess, err, true)
	}
	if err := m.pm.Approve(sess); err != nil {
		return nil, m.failed(resp, sess, err, true)
	}
	m.reporter.ReportFirmwareState(telemetry.FwStateVerified, "")
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleCommit(ctx context.Context, req *fsm.Request[Trigger, Result]) (*fsm.Response[Result], error) {
	resp := req.W.Msg
	sess := m.session()
	if resp == nil || sess == nil {
		return nil, fsm.Abort(fmt.Errorf("commit without open session"))
	}

	// reported and recorded before commit: commit switches the boot target
	// and on real hardware restarts the process before returning
	m.reporter.ReportFirmwareState(telemetry.FwStateUpdating, "")
	metrics.IncUpdateCommit()
	m.emit(history.EventUpdateCommitted, sess, "")
	if err := m.pm.Commit(sess); err != nil {
		return nil, m.failed(resp, sess, err, false)
	}
	m.setSession(nil)
	resp.Status = "committed"
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[Trigger, Result]) (*fsm.Response[Result], error) {
	resp := req.W.Msg
	if resp == nil {
		resp = &Result{}
	}
	if resp.Status == "" {
		resp.Status = "complete"
	}
	slog.Info("update pipeline finished", "session", resp.SessionID, "slot", resp.Slot, "status", resp.Status)
	return fsm.NewResponse(resp), nil
}
