package agent

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ishmatuaulia/thermoagent/internal/update"
)

func validTestTrigger() update.Trigger {
	sum := sha256.Sum256([]byte("image"))
	return update.Trigger{
		ImageLocation:  "https://example.com/fw.bin",
		ExpectedSize:   1024,
		ExpectedDigest: hex.EncodeToString(sum[:]),
	}
}
