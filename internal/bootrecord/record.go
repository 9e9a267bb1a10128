// Package bootrecord persists the boot selection state that survives reboots
// and power loss. The record is the single source of truth the next boot
// reads, so every write must be crash-atomic: a reader observes either the
// old record or the new one, never a torn mix.
package bootrecord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/ishmatuaulia/thermoagent/internal/flash"
)

const (
	// recordMagic marks a valid boot record ("TBR1").
	recordMagic   = 0x31524254
	recordVersion = 1

	// EncodedSize is the fixed on-disk size of a record.
	EncodedSize = 28
)

var (
	ErrNoRecord = errors.New("boot record not found")
	ErrCorrupt  = errors.New("boot record corrupt")
)

// Record is the persisted boot selection state.
type Record struct {
	ActiveSlot      flash.SlotID
	PreviousGood    flash.SlotID
	PendingVerify   bool
	ConfirmDeadline time.Time // zero when no verification is pending
	ConfirmCount    uint32
}

// Default returns the record a freshly provisioned device boots with.
func Default() Record {
	return Record{ActiveSlot: flash.Factory, PreviousGood: flash.Factory}
}

// Encode serializes r into its fixed binary layout with a trailing CRC32.
func (r Record) Encode() []byte {
	buf := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:], recordVersion)
	buf[8] = byte(r.ActiveSlot)
	buf[9] = byte(r.PreviousGood)
	if r.PendingVerify {
		buf[10] = 1
	}
	var deadline int64
	if !r.ConfirmDeadline.IsZero() {
		deadline = r.ConfirmDeadline.Unix()
	}
	binary.LittleEndian.PutUint64(buf[12:], uint64(deadline))
	binary.LittleEndian.PutUint32(buf[20:], r.ConfirmCount)
	crc := crc32.ChecksumIEEE(buf[:EncodedSize-4])
	binary.LittleEndian.PutUint32(buf[EncodedSize-4:], crc)
	return buf
}

// Decode parses an encoded record, verifying magic, version and CRC.
func Decode(buf []byte) (Record, error) {
	if len(buf) != EncodedSize {
		return Record{}, fmt.Errorf("%w: size %d", ErrCorrupt, len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:]) != recordMagic {
		return Record{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != recordVersion {
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	want := binary.LittleEndian.Uint32(buf[EncodedSize-4:])
	if crc32.ChecksumIEEE(buf[:EncodedSize-4]) != want {
		return Record{}, fmt.Errorf("%w: crc mismatch", ErrCorrupt)
	}
	r := Record{
		ActiveSlot:   flash.SlotID(buf[8]),
		PreviousGood: flash.SlotID(buf[9]),
		ConfirmCount: binary.LittleEndian.Uint32(buf[20:]),
	}
	r.PendingVerify = buf[10] == 1
	if deadline := int64(binary.LittleEndian.Uint64(buf[12:])); deadline != 0 {
		r.ConfirmDeadline = time.Unix(deadline, 0).UTC()
	}
	if !r.ActiveSlot.Valid() || !r.PreviousGood.Valid() {
		return Record{}, fmt.Errorf("%w: invalid slot id", ErrCorrupt)
	}
	return r, nil
}
