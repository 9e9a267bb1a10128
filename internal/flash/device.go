package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErasedByte is the value flash cells hold after an erase cycle.
const ErasedByte = 0xFF

var ErrOutOfRange = errors.New("write outside slot capacity")

// Device models the fixed set of firmware storage regions. Only the image
// receiver writes through it; erase is the only other content mutation.
type Device interface {
	ReadAt(id SlotID, off int64, p []byte) (int, error)
	WriteAt(id SlotID, off int64, p []byte) (int, error)
	Erase(id SlotID) error
	Capacity(id SlotID) uint64
	Close() error
}

// FileDevice backs each slot with a fixed-size file under a directory,
// standing in for the raw flash regions of the real device.
type FileDevice struct {
	dir      string
	capacity uint64
	files    map[SlotID]*os.File
}

// OpenFileDevice opens (creating if needed) the three slot files under dir,
// each pre-sized to capacity bytes of erased flash.
func OpenFileDevice(dir string, capacity uint64) (*FileDevice, error) {
	if capacity == 0 {
		return nil, errors.New("zero slot capacity")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	d := &FileDevice{dir: dir, capacity: capacity, files: make(map[SlotID]*os.File, 3)}
	for _, id := range []SlotID{Factory, SlotA, SlotB} {
		path := filepath.Join(dir, id.String()+".img")
		f, created, err := openSized(path, capacity)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
		d.files[id] = f
		if created {
			if err := d.Erase(id); err != nil {
				_ = d.Close()
				return nil, err
			}
		}
	}
	return d, nil
}

func openSized(path string, capacity uint64) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, err
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		_ = f.Close()
		return nil, false, err
	}
	return f, created, nil
}

func (d *FileDevice) check(id SlotID, off int64, n int) error {
	if !id.Valid() {
		return fmt.Errorf("invalid slot id %d", int(id))
	}
	if off < 0 || uint64(off)+uint64(n) > d.capacity {
		return ErrOutOfRange
	}
	return nil
}

func (d *FileDevice) ReadAt(id SlotID, off int64, p []byte) (int, error) {
	if err := d.check(id, off, len(p)); err != nil {
		return 0, err
	}
	return d.files[id].ReadAt(p, off)
}

func (d *FileDevice) WriteAt(id SlotID, off int64, p []byte) (int, error) {
	if err := d.check(id, off, len(p)); err != nil {
		return 0, err
	}
	n, err := d.files[id].WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, d.files[id].Sync()
}

// Erase resets the whole slot to erased flash.
func (d *FileDevice) Erase(id SlotID) error {
	if !id.Valid() {
		return fmt.Errorf("invalid slot id %d", int(id))
	}
	blank := make([]byte, 64*1024)
	for i := range blank {
		blank[i] = ErasedByte
	}
	f := d.files[id]
	var off int64
	remain := d.capacity
	for remain > 0 {
		n := uint64(len(blank))
		if remain < n {
			n = remain
		}
		if _, err := f.WriteAt(blank[:n], off); err != nil {
			return err
		}
		off += int64(n)
		remain -= n
	}
	return f.Sync()
}

func (d *FileDevice) Capacity(SlotID) uint64 { return d.capacity }

func (d *FileDevice) Close() error {
	var firstErr error
	for _, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
