package wire

import (
	"fmt"
	"io"
)

// Encoder writes framed, encoded values.
type Encoder struct {
	w     io.Writer
	codec Codec
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer, codec Codec) *Encoder {
	return &Encoder{w: w, codec: codec}
}

// Encode marshals v and writes it as one frame.
func (e *Encoder) Encode(v any) error {
	body, err := e.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", e.codec.Name(), err)
	}
	return WriteFrame(e.w, body)
}

// Decoder reads framed, encoded values.
type Decoder struct {
	r       io.Reader
	codec   Codec
	maxSize int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, codec Codec, maxSize int) *Decoder {
	return &Decoder{r: r, codec: codec, maxSize: maxSize}
}

// Decode reads one frame and unmarshals it. io.EOF is returned unwrapped.
func (d *Decoder) Decode() (any, error) {
	body, err := ReadFrame(d.r, d.maxSize)
	if err != nil {
		return nil, err
	}
	v, err := d.codec.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUndecodable, d.codec.Name(), err)
	}
	return v, nil
}
