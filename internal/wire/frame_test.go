package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, body := range [][]byte{[]byte("hello"), nil} {
		if err := WriteFrame(&buf, body); err != nil {
			t.Fatalf("WriteFrame(%q) error = %v", body, err)
		}
	}

	want := []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("encoded = %v, want %v", buf.Bytes(), want)
	}

	body, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("ReadFrame() = %q, want hello", body)
	}

	body, err = ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if len(body) != 0 {
		t.Errorf("ReadFrame() = %q, want empty", body)
	}

	if _, err := ReadFrame(&buf, 0); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 1024)

	if _, err := ReadFrame(bytes.NewReader(header[:]), 512); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"partial header", []byte{0, 0}},
		{"partial body", []byte{0, 0, 0, 4, 'a', 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.data), 0)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("ReadFrame() error = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}
