package update

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ishmatuaulia/thermoagent/internal/partition"
)

// Validator checks a completed session against policy before commit: declared
// size, accumulated digest, header magic, and the downgrade rule. It performs
// no cryptographic signature check; images are only integrity-checked.
type Validator struct {
	pm *partition.Manager
	// RunningVersion is the version tag of the firmware currently executing.
	RunningVersion string
	// AllowDowngrade permits committing an image older than RunningVersion.
	AllowDowngrade bool
}

func NewValidator(pm *partition.Manager, runningVersion string, allowDowngrade bool) *Validator {
	return &Validator{pm: pm, RunningVersion: runningVersion, AllowDowngrade: allowDowngrade}
}

// Validate returns nil when the image may be committed. Checks run in order:
// size, digest, header. A non-nil error wraps one of the taxonomy sentinels.
func (v *Validator) Validate(sess *partition.Session) error {
	if sess.BytesWritten() != sess.ExpectedSize() {
		return fmt.Errorf("%w: wrote %d, declared %d", ErrSizeMismatch, sess.BytesWritten(), sess.ExpectedSize())
	}
	if got := sess.Digest(); !strings.EqualFold(got, sess.Meta.Digest) {
		return fmt.Errorf("%w: computed %s", ErrDigestMismatch, got)
	}
	buf := make([]byte, HeaderSize)
	if _, err := v.pm.ReadImage(sess, 0, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrHeaderInvalid, err)
	}
	hdr, err := ParseHeader(buf)
	if err != nil {
		return err
	}
	if sess.Meta.VersionTag != "" && hdr.VersionTag != sess.Meta.VersionTag {
		return fmt.Errorf("%w: header version %q, trigger declared %q", ErrHeaderInvalid, hdr.VersionTag, sess.Meta.VersionTag)
	}
	if !v.AllowDowngrade && v.RunningVersion != "" && compareVersions(hdr.VersionTag, v.RunningVersion) < 0 {
		return fmt.Errorf("%w: %s < running %s", ErrDowngradeRejected, hdr.VersionTag, v.RunningVersion)
	}
	return nil
}

// compareVersions orders dotted numeric version tags ("1.2.0" style).
// Non-numeric components fall back to lexical comparison.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		ap, bp := "0", "0"
		if i < len(as) {
			ap = as[i]
		}
		if i < len(bs) {
			bp = bs[i]
		}
		ai, aerr := strconv.Atoi(ap)
		bi, berr := strconv.Atoi(bp)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(ap, bp); c != 0 {
			return c
		}
	}
	return 0
}
