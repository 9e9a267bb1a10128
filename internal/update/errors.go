package update

import "errors"

// Failure taxonomy for update sessions. All of these are local failures: the
// session is torn down, the candidate slot erased, and the device keeps
// running its current firmware.
var (
	ErrUpdateBusy          = errors.New("update already in progress")
	ErrCapacityExceeded    = errors.New("declared image size exceeds slot capacity")
	ErrSequence            = errors.New("chunk offset out of sequence")
	ErrTransferInterrupted = errors.New("image transfer interrupted")
	ErrSizeMismatch        = errors.New("received size does not match declared size")
	ErrDigestMismatch      = errors.New("image digest mismatch")
	ErrHeaderInvalid       = errors.New("image header invalid")
	ErrDowngradeRejected   = errors.New("firmware downgrade rejected")
)

// Reason maps a failure to its stable taxonomy label, used for metrics and
// status reports.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUpdateBusy):
		return "update_busy"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrSequence):
		return "sequence_error"
	case errors.Is(err, ErrTransferInterrupted):
		return "transfer_interrupted"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, ErrDigestMismatch):
		return "digest_mismatch"
	case errors.Is(err, ErrHeaderInvalid):
		return "header_invalid"
	case errors.Is(err, ErrDowngradeRejected):
		return "downgrade_rejected"
	}
	return "internal"
}
