// Package recordio implements the length-prefixed framing the node
// agent uses to exchange records with this adapter over stdin/stdout
// the node agent's wire framing.
package recordio

import (
	"encoding/binary"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrZeroSize is returned by Read when a frame declares a zero or
// negative size, matching the original's rejection of a non-positive
// Protobuf length.
var ErrZeroSize = fmt.Errorf("recordio: expected non-zero frame size")

// Read consumes one frame from r — a 4-byte little-endian length
// prefix followed by exactly that many bytes — and unmarshals the
// payload into v.
func Read(r io.Reader, v interface{}) error {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("recordio: failed to read frame header: %w", err)
	}
	if size == 0 {
		return ErrZeroSize
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return fmt.Errorf("recordio: expected %d bytes, received %d: %w", size, n, err)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("recordio: failed to unmarshal frame payload: %w", err)
	}
	return nil
}

// Write serializes v and writes it to w as one length-prefixed frame.
func Write(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("recordio: failed to marshal frame payload: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("recordio: failed to write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("recordio: failed to write frame payload: %w", err)
	}
	return nil
}
