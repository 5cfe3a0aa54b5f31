// Package wire implements the length-prefixed JSON codec used on every
// TCP link between cameras and the server. A message is a 4-byte
// big-endian unsigned length followed by exactly that many bytes of
// UTF-8 JSON.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize bounds the decoded length header. Frames are base64
// JPEG payloads; anything past this is a corrupt header, not a message.
const MaxMessageSize = 32 * 1024 * 1024

// Send serializes v to JSON, prefixes it with the 4-byte length header
// and writes both in a single write call.
func Send(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive reads one framed message and returns its raw JSON payload.
// Any I/O error, short read or oversized header is terminal for the
// connection; callers treat a non-nil error as end-of-session.
func Receive(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("zero-length message")
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message length %d exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	return payload, nil
}

// ReceiveInto reads one framed message and decodes it into v.
func ReceiveInto(r io.Reader, v any) error {
	payload, err := Receive(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
