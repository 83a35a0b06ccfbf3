//go:build !unix

package shm

type segment struct {
	size int
	data []byte
}

func createSegment(string, int) (*segment, error) { return nil, ErrUnsupportedPlatform }

func (s *segment) destroy() error { return nil }

func reclaimSegment(string) error { return ErrUnsupportedPlatform }

// View is a read-only mapping of a published payload.
type View struct{}

// Open is not supported on this platform.
func Open(string, Descriptor) (*View, error) { return nil, ErrUnsupportedPlatform }

// Bytes returns nil.
func (v *View) Bytes() []byte { return nil }

// Close is a no-op.
func (v *View) Close() error { return nil }
