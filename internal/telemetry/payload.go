package telemetry

import (
	"encoding/json"
	"time"
)

// Firmware states reported on the telemetry topic, following the ThingsBoard
// OTA convention the device platform expects.
const (
	FwStateDownloading = "DOWNLOADING"
	FwStateDownloaded  = "DOWNLOADED"
	FwStateVerified    = "VERIFIED"
	FwStateUpdating    = "UPDATING"
	FwStateUpdated     = "UPDATED"
	FwStateFailed      = "FAILED"
)

// SamplePayload is the plain temperature message.
func SamplePayload(celsius float64) []byte {
	b, _ := json.Marshal(map[string]any{"temperature": celsius})
	return b
}

// TimestampedPayload carries the sample with the device-side timestamp, in
// the platform's ts/values envelope.
func TimestampedPayload(celsius float64, now time.Time) []byte {
	ms := now.UnixMilli()
	b, _ := json.Marshal(map[string]any{
		"ts": ms,
		"values": map[string]any{
			"temperature": celsius,
			"client_ts":   ms,
		},
	})
	return b
}

// FirmwareStatusPayload reports OTA progress for the given firmware.
func FirmwareStatusPayload(title, version, state string) []byte {
	b, _ := json.Marshal(map[string]string{
		"fw_title":   title,
		"fw_version": version,
		"fw_state":   state,
	})
	return b
}
