package update

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ishmatuaulia/thermoagent/internal/bootrecord"
	"github.com/ishmatuaulia/thermoagent/internal/flash"
	"github.com/ishmatuaulia/thermoagent/internal/partition"
)

const testSlotCapacity = 4096

func newTestPartitionManager(t *testing.T) *partition.Manager {
	t.Helper()
	dev := flash.NewMemDevice(testSlotCapacity)
	store := bootrecord.NewStore(filepath.Join(t.TempDir(), "boot.rec"))
	pm, err := partition.New(dev, store, partition.RestartFunc(func(string) {}), time.Minute)
	require.NoError(t, err)
	return pm
}

// buildImage assembles a headered image with padLen payload bytes and returns
// it with its hex digest.
func buildImage(tag string, padLen int) ([]byte, string) {
	img := EncodeHeader(tag)
	for i := 0; i < padLen; i++ {
		img = append(img, byte(i))
	}
	sum := sha256.Sum256(img)
	return img, hex.EncodeToString(sum[:])
}

// openSession begins a write session for the given image.
func openSession(t *testing.T, pm *partition.Manager, img []byte, digest, tag string) *partition.Session {
	t.Helper()
	id, err := pm.SelectCandidate()
	require.NoError(t, err)
	sess, err := pm.BeginWrite(id, flash.ImageMeta{
		DeclaredSize: uint64(len(img)),
		Digest:       digest,
		VersionTag:   tag,
	})
	require.NoError(t, err)
	return sess
}
