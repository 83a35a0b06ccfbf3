//go:build unix

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const segmentPermissions = 0o600

type segment struct {
	path string
	file *os.File
	data []byte
	size int
}

// createSegment creates path exclusively, sizes it and maps it read-write.
// The returned error wraps fs.ErrExist when path is already present.
func createSegment(path string, size int) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, segmentPermissions) //nolint:gosec // path built from config
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*segment, error) {
		f.Close()       //nolint:errcheck // error path
		os.Remove(path) //nolint:errcheck // error path
		return nil, err
	}

	if err := f.Truncate(int64(size)); err != nil {
		return fail(fmt.Errorf("sizing segment: %w", err))
	}

	seg := &segment{path: path, file: f, size: size}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fail(fmt.Errorf("mapping segment: %w", err))
		}
		seg.data = data
	}
	return seg, nil
}

// destroy unmaps, closes and unlinks the segment.
func (s *segment) destroy() error {
	var errs []error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping: %w", err))
		}
		s.data = nil
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing: %w", err))
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("unlinking: %w", err))
	}
	return errors.Join(errs...)
}

// reclaimSegment attaches to a leftover segment, detaches, and unlinks it.
// A segment that vanished in between is not an error.
func reclaimSegment(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // path built from config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	f.Close() //nolint:errcheck // only held to prove ownership
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// View is a read-only mapping of a published payload.
type View struct {
	data []byte
	file *os.File
}

// Open maps the payload described by d from dir read-only.
func Open(dir string, d Descriptor) (*View, error) {
	size, err := d.ByteSize()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, d.Identifier)) //nolint:gosec // identifier from descriptor
	if err != nil {
		return nil, fmt.Errorf("opening segment: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("inspecting segment: %w", err)
	}
	if info.Size() < int64(size) {
		f.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("%w: segment holds %d bytes, descriptor needs %d", ErrSizeMismatch, info.Size(), size)
	}

	v := &View{file: f}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close() //nolint:errcheck // error path
			return nil, fmt.Errorf("mapping segment: %w", err)
		}
		v.data = data
	}
	return v, nil
}

// Bytes returns the mapped payload. It is invalid after Close.
func (v *View) Bytes() []byte {
	return v.data
}

// Close unmaps the view.
func (v *View) Close() error {
	var errs []error
	if v.data != nil {
		errs = append(errs, unix.Munmap(v.data))
		v.data = nil
	}
	if v.file != nil {
		errs = append(errs, v.file.Close())
		v.file = nil
	}
	return errors.Join(errs...)
}
