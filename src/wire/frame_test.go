package wire

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "short payload",
			payload: map[string]any{"type": "Hi", "uid": float64(1)},
		},
		{
			name: "16-bit extended length",
			payload: map[string]any{
				"type":    "Hi",
				"content": strings.Repeat("x", 300),
			},
		},
		{
			name: "64-bit extended length",
			payload: map[string]any{
				"type":    "Hi",
				"content": strings.Repeat("y", 70000),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			frame, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !frame.Final {
				t.Error("expected final frame")
			}
			if frame.Opcode != OpcodeText {
				t.Errorf("opcode = %#x, want %#x", frame.Opcode, OpcodeText)
			}
			if frame.Masked {
				t.Error("server frames must be unmasked")
			}
			if !reflect.DeepEqual(frame.Value, anyMap(tt.payload)) {
				t.Errorf("payload = %v, want %v", frame.Value, tt.payload)
			}
		})
	}
}

func TestEncodeLengthEncoding(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
		wantByte1  byte
		wantHeader int
	}{
		{"7-bit", 125, 125, 2},
		{"16-bit boundary low", 126, 126, 4},
		{"16-bit boundary high", 65535, 126, 4},
		{"64-bit", 65536, 127, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := EncodeFrame(Frame{
				Final:   true,
				Opcode:  OpcodeText,
				Payload: make([]byte, tt.payloadLen),
			})
			if got := data[1] & 0x7f; got != tt.wantByte1 {
				t.Errorf("length byte = %d, want %d", got, tt.wantByte1)
			}
			if got := len(data) - tt.payloadLen; got != tt.wantHeader {
				t.Errorf("header size = %d, want %d", got, tt.wantHeader)
			}
		})
	}
}

func TestDecodeMaskedFrame(t *testing.T) {
	payload := []byte(`{"type":"Hi","uid":1}`)
	key := [4]byte{0x12, 0x34, 0x56, 0x78}

	data := []byte{0x81, 0x80 | byte(len(payload))}
	data = append(data, key[:]...)
	for i, b := range payload {
		// Key index wraps at 4; payload is longer than the key.
		data = append(data, b^key[i%4])
	}

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !frame.Masked {
		t.Error("expected masked frame")
	}
	if frame.MaskingKey != key {
		t.Errorf("masking key = %v, want %v", frame.MaskingKey, key)
	}
	if string(frame.Payload) != string(payload) {
		t.Errorf("payload = %q, want %q", frame.Payload, payload)
	}
	v, ok := frame.Value.(map[string]any)
	if !ok || v["type"] != "Hi" {
		t.Errorf("decoded value = %v, want type Hi", frame.Value)
	}
}

func TestDecodeNonJSONPayloadKeptRaw(t *testing.T) {
	raw := []byte("not json at all")
	data := EncodeFrame(Frame{Final: true, Opcode: OpcodeText, Payload: raw})

	frame, err := Decode(data)
	if !errors.Is(err, ErrPayloadNotJSON) {
		t.Fatalf("error = %v, want ErrPayloadNotJSON", err)
	}
	if string(frame.Payload) != string(raw) {
		t.Errorf("payload = %q, want %q", frame.Payload, raw)
	}
	if frame.Value != nil {
		t.Errorf("value = %v, want nil", frame.Value)
	}
}

func TestDecodeCloseFrame(t *testing.T) {
	frame, err := Decode([]byte{0x88, 0x00})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if frame.Opcode != OpcodeClose {
		t.Errorf("opcode = %#x, want %#x", frame.Opcode, OpcodeClose)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(frame.Payload))
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	data := EncodeFrame(Frame{Final: true, Opcode: OpcodeText, Payload: []byte(`{"a":1}`)})

	if _, err := Decode(data[:3]); err == nil {
		t.Error("expected error for truncated frame")
	}
	if errors.Is(mustErr(t, data[:3]), ErrPayloadNotJSON) {
		t.Error("truncated frame must not report a payload decode error")
	}
}

func mustErr(t *testing.T, data []byte) error {
	t.Helper()
	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected error")
	}
	return err
}

func anyMap(m map[string]any) any { return map[string]any(m) }
