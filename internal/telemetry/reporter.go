package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ishmatuaulia/thermoagent/internal/metrics"
)

// Publisher is the narrow transport surface the reporter needs; the MQTT
// client implements it and tests provide fakes.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Reporter publishes telemetry and firmware status. The first successful
// publish of a boot fires the health signal the rollback guard listens for.
type Reporter struct {
	pub       Publisher
	health    *Health
	fwTitle   string
	fwVersion string
	now       func() time.Time
}

func NewReporter(pub Publisher, health *Health, fwTitle, fwVersion string) *Reporter {
	return &Reporter{pub: pub, health: health, fwTitle: fwTitle, fwVersion: fwVersion, now: time.Now}
}

// PublishTemperature sends the plain and timestamped sample payloads.
func (r *Reporter) PublishTemperature(ctx context.Context, celsius float64) error {
	now := r.now()
	for _, payload := range [][]byte{
		SamplePayload(celsius),
		TimestampedPayload(celsius, now),
	} {
		if err := r.pub.Publish(ctx, payload); err != nil {
			metrics.IncPublish(false)
			return err
		}
	}
	metrics.IncPublish(true)
	metrics.SetTemperature(celsius)
	r.health.Signal()
	return nil
}

// ReportFirmwareState publishes an OTA status message. Failures are logged,
// not returned: status reporting must never block the update pipeline.
func (r *Reporter) ReportFirmwareState(state, detail string) {
	version := r.fwVersion
	payload := FirmwareStatusPayload(r.fwTitle, version, state)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.pub.Publish(ctx, payload); err != nil {
		slog.Error("firmware status publish failed", "state", state, "error", err)
		return
	}
	slog.Info("firmware status reported", "state", state, "detail", detail)
}
