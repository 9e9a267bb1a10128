package update

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

// Commands accepted on the out-of-band command channel.
const (
	CommandUpdate = "update"
	CommandAbort  = "abort"
)

// Trigger is the out-of-band update command: where the image lives and what
// it must hash to.
type Trigger struct {
	Command        string `json:"command,omitempty"` // defaults to "update"
	ImageLocation  string `json:"image_location"`
	ExpectedSize   uint64 `json:"expected_size"`
	ExpectedDigest string `json:"expected_digest"` // hex sha256
	VersionTag     string `json:"version_tag,omitempty"`
}

// Validate checks the trigger is well formed before a session is opened.
func (t Trigger) Validate() error {
	if t.ImageLocation == "" {
		return errors.New("image_location required")
	}
	if t.ExpectedSize == 0 {
		return errors.New("expected_size required")
	}
	digest, err := hex.DecodeString(t.ExpectedDigest)
	if err != nil || len(digest) != 32 {
		return errors.New("expected_digest must be hex sha256")
	}
	return nil
}

// Meta converts the trigger into slot image metadata.
func (t Trigger) Meta() flash.ImageMeta {
	return flash.ImageMeta{
		DeclaredSize: t.ExpectedSize,
		Digest:       t.ExpectedDigest,
		VersionTag:   t.VersionTag,
	}
}

// CommandSource delivers raw command payloads from the messaging channel.
type CommandSource interface {
	SubscribeCommands(handler func(payload []byte)) error
}

// CommandTarget is the coordinator surface the listener drives.
type CommandTarget interface {
	Start(trig Trigger) (string, error)
	Abort() error
}

// Listener parses command payloads and drives the coordinator. Outside an
// update it is idle.
type Listener struct {
	co CommandTarget
}

func NewListener(co CommandTarget) *Listener { return &Listener{co: co} }

// Start subscribes to the command channel. Handler errors are reported, not
// fatal: a malformed or rejected trigger leaves the device running.
func (l *Listener) Start(src CommandSource) error {
	return src.SubscribeCommands(func(payload []byte) {
		if err := l.handle(payload); err != nil {
			slog.Error("update command rejected", "error", err)
		}
	})
}

func (l *Listener) handle(payload []byte) error {
	var trig Trigger
	if err := json.Unmarshal(payload, &trig); err != nil {
		return fmt.Errorf("parse update command: %w", err)
	}
	switch trig.Command {
	case CommandAbort:
		return l.co.Abort()
	case "", CommandUpdate:
		if err := trig.Validate(); err != nil {
			return err
		}
		_, err := l.co.Start(trig)
		return err
	}
	return fmt.Errorf("unknown command %q", trig.Command)
}
