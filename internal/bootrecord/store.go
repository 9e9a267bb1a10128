package bootrecord

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store reads and writes the boot record in a reserved non-volatile location
// separate from the firmware slots. Save follows the write-then-fsync-then-
// rename discipline so a crash at any byte leaves the previous record intact.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

// Load reads and validates the current record. ErrNoRecord means the device
// has never committed one; ErrCorrupt means whatever is there cannot be
// trusted and the caller should fall back to the factory slot.
func (s *Store) Load() (Record, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, err
	}
	return Decode(buf)
}

// Save atomically replaces the record on disk.
func (s *Store) Save(r Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(r.Encode()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
