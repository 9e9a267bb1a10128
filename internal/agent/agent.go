// Package agent wires the whole device controller together: flash slots,
// boot record, update pipeline, rollback guard, sensor loop, telemetry, and
// the local HTTP API.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ishmatuaulia/thermoagent/internal/bootrecord"
	"github.com/ishmatuaulia/thermoagent/internal/config"
	"github.com/ishmatuaulia/thermoagent/internal/fetch"
	"github.com/ishmatuaulia/thermoagent/internal/flash"
	"github.com/ishmatuaulia/thermoagent/internal/guard"
	"github.com/ishmatuaulia/thermoagent/internal/history"
	historyfactory "github.com/ishmatuaulia/thermoagent/internal/history/factory"
	"github.com/ishmatuaulia/thermoagent/internal/metrics"
	"github.com/ishmatuaulia/thermoagent/internal/partition"
	"github.com/ishmatuaulia/thermoagent/internal/sensor"
	"github.com/ishmatuaulia/thermoagent/internal/server"
	"github.com/ishmatuaulia/thermoagent/internal/telemetry"
	"github.com/ishmatuaulia/thermoagent/internal/update"
)

// RestartExitCode signals the supervisor that the exit is a deliberate
// restart after a boot target change, not a crash.
const RestartExitCode = 3

// exitFunc is swapped out in tests.
var exitFunc = os.Exit

// Agent is the long-running device controller.
type Agent struct {
	cfg *config.FileConfig

	dev     flash.Device
	pm      *partition.Manager
	sinks   []history.Sink
	sampler sensor.Sampler

	health   *telemetry.Health
	mq       *telemetry.Client
	reporter *telemetry.Reporter
	co       *update.Coordinator
	httpSrv  *http.Server

	mu           sync.Mutex
	lastTemp     *float64
	lastSampleAt *time.Time
}

// New builds the agent's storage-side components. Network-side wiring
// happens in Run, after the broker connection is up.
func New(cfg *config.FileConfig) (*Agent, error) {
	a := &Agent{cfg: cfg, health: telemetry.NewHealth()}

	var err error
	if cfg.Update.InMemory {
		a.dev = flash.NewMemDevice(cfg.Update.SlotCapacity)
	} else {
		if err := os.MkdirAll(cfg.Update.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create update dir: %w", err)
		}
		a.dev, err = flash.OpenFileDevice(cfg.Update.Dir, cfg.Update.SlotCapacity)
		if err != nil {
			return nil, fmt.Errorf("open slot storage: %w", err)
		}
	}

	recordPath := cfg.Update.RecordPath
	if recordPath == "" {
		recordPath = filepath.Join(os.TempDir(), "thermoagent-boot.rec")
	}
	store := bootrecord.NewStore(recordPath)
	a.pm, err = partition.New(a.dev, store, partition.RestartFunc(restart), cfg.Update.ConfirmWindow)
	if err != nil {
		return nil, err
	}

	for _, dsn := range cfg.History.DSNs {
		sink, err := historyfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		a.sinks = append(a.sinks, sink)
	}

	if cfg.Sensor.Simulate {
		a.sampler = sensor.NewSimSampler(22.0, time.Now().UnixNano())
	} else {
		dir := cfg.Sensor.W1Dir
		if dir == "" {
			dir = sensor.DefaultW1Dir
		}
		a.sampler, err = sensor.DiscoverW1(dir)
		if err != nil {
			return nil, err
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	a.publishSlotStates()
	return a, nil
}

func restart(reason string) {
	slog.Info("restarting for boot target change", "reason", reason)
	exitFunc(RestartExitCode)
}

// Run connects to the broker and runs the agent until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	mq, err := telemetry.Dial(ctx, telemetry.Config{
		BrokerURL:      a.cfg.MQTT.BrokerURL,
		Username:       a.cfg.MQTT.Username,
		Password:       a.cfg.MQTT.Password,
		ClientID:       a.cfg.MQTT.ClientID,
		TelemetryTopic: a.cfg.MQTT.TelemetryTopic,
		CommandTopic:   a.cfg.MQTT.CommandTopic,
		ConnectTimeout: a.cfg.MQTT.ConnectTimeout,
		PublishTimeout: a.cfg.MQTT.PublishTimeout,
	})
	if err != nil {
		return err
	}
	a.mq = mq
	defer mq.Close()

	a.reporter = telemetry.NewReporter(mq, a.health, a.cfg.Device.FwTitle, a.cfg.Device.FwVersion)

	resolver := fetch.NewResolver()
	if s3f, err := fetch.NewS3Fetcher(ctx, ""); err != nil {
		slog.Warn("s3 fetch unavailable", "error", err)
	} else {
		resolver.S3 = s3f
	}

	validator := update.NewValidator(a.pm, a.cfg.Device.FwVersion, a.cfg.Update.AllowDowngrade)
	machine := update.NewMachine(a.pm, validator, resolver, a.reporter, a.cfg.Device.ID, a.sinks)
	a.co, err = update.NewCoordinator(ctx, machine, a.cfg.Update.JournalPath)
	if err != nil {
		return err
	}
	defer a.co.Shutdown(10 * time.Second)

	if err := update.NewListener(a.co).Start(mq); err != nil {
		return fmt.Errorf("subscribe update commands: %w", err)
	}

	a.httpSrv, err = server.NewServer(a.cfg.Server.Listen, "", a)
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.httpSrv.Shutdown(shutCtx)
	}()

	guardDone := make(chan struct{})
	go func() {
		defer close(guardDone)
		a.runGuard(ctx)
	}()

	slog.Info("agent running",
		"device", a.cfg.Device.ID,
		"fw_version", a.cfg.Device.FwVersion,
		"active_slot", a.pm.Record().ActiveSlot.String())

	a.sensorLoop(ctx)

	<-guardDone
	for _, s := range a.sinks {
		_ = s.Close()
	}
	return ctx.Err()
}

// runGuard drives the post-update verification window. Outside a pending
// verification it only reports the running firmware as healthy.
func (a *Agent) runGuard(ctx context.Context) {
	pending := a.pm.Record().PendingVerify
	outcome, err := guard.New(a.pm, a.health.Done()).Run(ctx)
	if err != nil {
		slog.Error("rollback guard failed", "error", err)
		return
	}
	switch outcome {
	case guard.OutcomeConfirmed:
		a.reporter.ReportFirmwareState(telemetry.FwStateUpdated, "")
		a.emit(history.EventConfirm, "firmware confirmed healthy")
		a.publishSlotStates()
	case guard.OutcomeRolledBack:
		// normally unreachable: rollback restarts the process
		a.emit(history.EventRollback, "confirm deadline expired")
	case guard.OutcomeNoop:
		if !pending {
			a.reporter.ReportFirmwareState(telemetry.FwStateUpdated, "")
		}
	}
}

// sensorLoop samples the probe on the configured interval and publishes
// telemetry until ctx is cancelled.
func (a *Agent) sensorLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Sensor.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sampleOnce(ctx)
		}
	}
}

func (a *Agent) sampleOnce(ctx context.Context) {
	c, err := a.sampler.Sample(ctx)
	if err != nil {
		slog.Warn("temperature sample failed", "error", err)
		return
	}
	if err := a.reporter.PublishTemperature(ctx, c.Float64()); err != nil {
		slog.Warn("telemetry publish failed", "error", err)
		return
	}
	now := time.Now().UTC()
	v := c.Float64()
	a.mu.Lock()
	a.lastTemp = &v
	a.lastSampleAt = &now
	a.mu.Unlock()

	a.emitSample(v)
}

func (a *Agent) emit(typ history.EventType, detail string) {
	rec := a.pm.Record()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := history.Fanout(ctx, a.sinks, history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		DeviceID:   a.cfg.Device.ID,
		Slot:       rec.ActiveSlot.String(),
		Version:    a.cfg.Device.FwVersion,
		Detail:     detail,
	}); err != nil {
		slog.Error("history event not recorded", "type", typ, "error", err)
	}
}

func (a *Agent) emitSample(celsius float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := history.Fanout(ctx, a.sinks, history.Event{
		Type:        history.EventSample,
		OccurredAt:  time.Now().UTC(),
		DeviceID:    a.cfg.Device.ID,
		Temperature: celsius,
	}); err != nil {
		slog.Error("sample not recorded", "error", err)
	}
}

func (a *Agent) publishSlotStates() {
	all := []string{"empty", "writing", "written", "valid", "invalid", "pending_verify", "confirmed"}
	for _, s := range a.pm.Slots() {
		metrics.SetSlotState(s.ID.String(), s.State.String(), all)
	}
}

// --- server.Controller ---

func (a *Agent) Status() server.Status {
	rec := a.pm.Record()
	st := server.Status{
		DeviceID:      a.cfg.Device.ID,
		FwTitle:       a.cfg.Device.FwTitle,
		FwVersion:     a.cfg.Device.FwVersion,
		ActiveSlot:    rec.ActiveSlot.String(),
		PendingVerify: rec.PendingVerify,
		Recovered:     a.pm.Recovered(),
	}
	if rec.PendingVerify {
		d := rec.ConfirmDeadline
		st.ConfirmDeadline = &d
	}
	for _, s := range a.pm.Slots() {
		st.Slots = append(st.Slots, server.SlotStatus{
			Slot:  s.ID.String(),
			Role:  s.Role.String(),
			State: s.State.String(),
		})
	}
	if a.co != nil {
		st.UpdateBusy = a.co.Busy()
		st.LastUpdate = a.co.LastResult()
	}
	a.mu.Lock()
	st.TemperatureC = a.lastTemp
	st.LastSampleAt = a.lastSampleAt
	a.mu.Unlock()
	return st
}

func (a *Agent) StartUpdate(trig update.Trigger) (string, error) {
	if a.co == nil {
		return "", fmt.Errorf("update coordinator not running")
	}
	return a.co.Start(trig)
}

func (a *Agent) AbortUpdate() error {
	if a.co == nil {
		return fmt.Errorf("update coordinator not running")
	}
	return a.co.Abort()
}
