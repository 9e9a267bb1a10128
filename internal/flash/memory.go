package flash

import "fmt"

// MemDevice is an in-memory Device used on platforms without a flash layout
// directory and throughout the tests.
type MemDevice struct {
	capacity uint64
	regions  map[SlotID][]byte
}

func NewMemDevice(capacity uint64) *MemDevice {
	d := &MemDevice{capacity: capacity, regions: make(map[SlotID][]byte, 3)}
	for _, id := range []SlotID{Factory, SlotA, SlotB} {
		d.regions[id] = erased(capacity)
	}
	return d
}

func erased(n uint64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ErasedByte
	}
	return b
}

func (d *MemDevice) check(id SlotID, off int64, n int) error {
	if !id.Valid() {
		return fmt.Errorf("invalid slot id %d", int(id))
	}
	if off < 0 || uint64(off)+uint64(n) > d.capacity {
		return ErrOutOfRange
	}
	return nil
}

func (d *MemDevice) ReadAt(id SlotID, off int64, p []byte) (int, error) {
	if err := d.check(id, off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, d.regions[id][off:]), nil
}

func (d *MemDevice) WriteAt(id SlotID, off int64, p []byte) (int, error) {
	if err := d.check(id, off, len(p)); err != nil {
		return 0, err
	}
	return copy(d.regions[id][off:], p), nil
}

func (d *MemDevice) Erase(id SlotID) error {
	if !id.Valid() {
		return fmt.Errorf("invalid slot id %d", int(id))
	}
	d.regions[id] = erased(d.capacity)
	return nil
}

func (d *MemDevice) Capacity(SlotID) uint64 { return d.capacity }

func (d *MemDevice) Close() error { return nil }
