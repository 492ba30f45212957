// Package wire implements the WebSocket wire protocol directly: the binary
// frame codec and the HTTP upgrade handshake. Frames carry JSON payloads.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Opcodes from RFC 6455 section 5.2. Only text and close are acted on.
const (
	OpcodeText  = 0x1
	OpcodeClose = 0x8
)

// ErrPayloadNotJSON reports a frame whose payload could not be decoded as
// JSON. The frame itself is still valid; Payload holds the raw bytes.
var ErrPayloadNotJSON = errors.New("payload is not valid JSON")

// Frame is one decoded WebSocket frame.
type Frame struct {
	Final      bool
	Opcode     byte
	Masked     bool
	MaskingKey [4]byte
	Payload    []byte // unmasked payload bytes
	Value      any    // JSON-decoded payload, nil when empty or undecodable
}

// ReadFrame reads exactly one frame from r. The payload is unmasked and,
// when non-empty, decoded as JSON into Frame.Value. A JSON decode failure
// returns the usable frame together with an error wrapping
// ErrPayloadNotJSON; any other error means the frame could not be read.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Final:  hdr[0]&0x80 == 0x80,
		Opcode: hdr[0] & 0x0f,
		Masked: hdr[1]&0x80 == 0x80,
	}

	length := uint64(hdr[1] & 0x7f)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("read 16-bit length: %w", err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("read 64-bit length: %w", err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskingKey[:]); err != nil {
			return Frame{}, fmt.Errorf("read masking key: %w", err)
		}
	}

	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("read payload: %w", err)
		}
		if f.Masked {
			for i := range f.Payload {
				f.Payload[i] ^= f.MaskingKey[i%4]
			}
		}
	}

	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &f.Value); err != nil {
			return f, fmt.Errorf("%w: %s", ErrPayloadNotJSON, err)
		}
	}
	return f, nil
}

// Decode decodes a frame from a byte slice.
func Decode(data []byte) (Frame, error) {
	return ReadFrame(bytes.NewReader(data))
}

// EncodeFrame serializes a frame as server-to-client bytes: unmasked, with
// the minimal length encoding (7-bit, 16-bit or 64-bit).
func EncodeFrame(f Frame) []byte {
	n := len(f.Payload)

	head := make([]byte, 0, 10)
	b0 := f.Opcode
	if f.Final {
		b0 |= 0x80
	}
	head = append(head, b0)

	switch {
	case n < 126:
		head = append(head, byte(n))
	case n < 65536:
		head = append(head, 126, byte(n>>8), byte(n))
	default:
		head = append(head, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		head = append(head, ext[:]...)
	}

	return append(head, f.Payload...)
}

// Encode marshals v as JSON and wraps it in a final text frame.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return EncodeFrame(Frame{Final: true, Opcode: OpcodeText, Payload: payload}), nil
}
