package update

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Firmware images start with a fixed 40-byte header: magic, header format
// version, and a zero-padded version tag.
const (
	HeaderMagic    = 0x314D5746 // "FWM1"
	headerFormatV1 = 1
	versionTagLen  = 32

	// HeaderSize is the minimum length of a valid image.
	HeaderSize = 8 + versionTagLen
)

// Header is the decoded firmware image header.
type Header struct {
	Format     uint32
	VersionTag string
}

// EncodeHeader builds an image header for the given version tag. Image build
// tooling and the test fixtures share this layout.
func EncodeHeader(versionTag string) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], HeaderMagic)
	binary.LittleEndian.PutUint32(buf[4:], headerFormatV1)
	copy(buf[8:], versionTag)
	return buf
}

// ParseHeader decodes and sanity-checks the header at the start of an image.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: image shorter than header", ErrHeaderInvalid)
	}
	if magic := binary.LittleEndian.Uint32(buf[0:]); magic != HeaderMagic {
		return Header{}, fmt.Errorf("%w: bad magic 0x%08x", ErrHeaderInvalid, magic)
	}
	format := binary.LittleEndian.Uint32(buf[4:])
	if format != headerFormatV1 {
		return Header{}, fmt.Errorf("%w: unsupported header format %d", ErrHeaderInvalid, format)
	}
	tag := string(bytes.TrimRight(buf[8:HeaderSize], "\x00"))
	if tag == "" {
		return Header{}, fmt.Errorf("%w: empty version tag", ErrHeaderInvalid)
	}
	return Header{Format: format, VersionTag: tag}, nil
}
