package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// DefaultDir is the POSIX shared memory namespace on Linux.
const DefaultDir = "/dev/shm"

// Logger defines the logging interface used by the broker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Broker owns the producer side of the shared payload segment.
//
// Exactly one segment is live at a time. Push and Release may be called
// from several workers; the broker serialises them.
type Broker struct {
	dir        string
	identifier string
	logger     Logger

	mu  sync.Mutex
	seg *segment

	allocations int
}

// NewBroker creates a broker for the segment named identifier inside dir.
// Nothing is allocated until the first Push.
func NewBroker(dir, identifier string) *Broker {
	if dir == "" {
		dir = DefaultDir
	}
	return &Broker{
		dir:        dir,
		identifier: identifier,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the broker.
func (b *Broker) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Identifier returns the segment name published in descriptors.
func (b *Broker) Identifier() string {
	return b.identifier
}

// Path returns the segment's filesystem path.
func (b *Broker) Path() string {
	return filepath.Join(b.dir, b.identifier)
}

// Size returns the current segment size in bytes, or 0 when none is allocated.
func (b *Broker) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seg == nil {
		return 0
	}
	return b.seg.size
}

// Allocations returns how many segments this broker has created.
func (b *Broker) Allocations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocations
}

// Push copies data into the shared segment and describes it.
//
// The segment is reused when its size already equals len(data); otherwise
// the old one is released and a new one created. A stale segment left under
// the same name is reclaimed once before giving up.
//
// Parameters:
//   - data: Raw payload bytes
//   - shape: Array dimensions; product(shape)*width(elementType) must equal len(data)
//   - elementType: Element type name, for example "uint16"
//
// Returns:
//   - Descriptor: Where and how to read the payload
//   - error: ErrSizeMismatch, ErrUnknownElementType or ErrSegmentUnavailable
func (b *Broker) Push(data []byte, shape []int, elementType string) (Descriptor, error) {
	want, err := ByteSize(shape, elementType)
	if err != nil {
		return Descriptor{}, err
	}
	if want != len(data) {
		return Descriptor{}, fmt.Errorf("%w: %d bytes for shape %v of %s (want %d)",
			ErrSizeMismatch, len(data), shape, elementType, want)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seg == nil || b.seg.size != len(data) {
		if err := b.allocate(len(data)); err != nil {
			return Descriptor{}, err
		}
	}
	copy(b.seg.data, data)

	return Descriptor{
		Identifier:  b.identifier,
		Shape:       append([]int(nil), shape...),
		ElementType: elementType,
	}, nil
}

// allocate replaces the current segment. Caller holds b.mu.
func (b *Broker) allocate(size int) error {
	if b.seg != nil {
		if err := b.seg.destroy(); err != nil {
			b.logger.Warn("releasing previous segment", "path", b.Path(), "error", err)
		}
		b.seg = nil
	}

	seg, err := createSegment(b.Path(), size)
	if errors.Is(err, fs.ErrExist) {
		b.logger.Warn("reclaiming stale shared memory segment", "path", b.Path())
		if rerr := reclaimSegment(b.Path()); rerr != nil {
			return fmt.Errorf("%w: reclaiming %s: %v", ErrSegmentUnavailable, b.Path(), rerr)
		}
		seg, err = createSegment(b.Path(), size)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSegmentUnavailable, err)
	}

	b.seg = seg
	b.allocations++
	b.logger.Debug("allocated shared memory segment", "path", b.Path(), "bytes", size)
	return nil
}

// Release unmaps and unlinks the current segment. Calling it again, or
// before any Push, is a no-op.
func (b *Broker) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seg == nil {
		return nil
	}
	err := b.seg.destroy()
	b.seg = nil
	if err != nil {
		return fmt.Errorf("releasing shared memory segment: %w", err)
	}
	b.logger.Info("released shared memory segment", "path", b.Path())
	return nil
}
