package database

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// mapping owns the file and its shared memory mapping.
type mapping struct {
	f    *os.File
	data []byte
}

// openMapping maps the file at path. When the file is new or empty it is
// first extended to size bytes.
func openMapping(path string, size int64) (*mapping, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, false, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}

	created := info.Size() == 0
	if created {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("sizing store file: %w", err)
		}
	} else {
		size = info.Size()
	}

	if size < regionStart {
		f.Close()
		return nil, false, fmt.Errorf("store file too small: %d bytes", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("mapping store file: %w", err)
	}

	return &mapping{f: f, data: data}, created, nil
}

// sync flushes the mapped pages to disk.
func (m *mapping) sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// size returns the size of the mapped region.
func (m *mapping) size() uint64 {
	return uint64(len(m.data))
}

// close unmaps the region and closes the file.
func (m *mapping) close() error {
	return multierr.Combine(unix.Munmap(m.data), m.f.Close())
}
