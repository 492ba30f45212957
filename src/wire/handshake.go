package wire

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// GUID fixed by RFC 6455 section 1.3 for computing Sec-Websocket-Accept.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake validation failures. The caller must close the stream without
// responding.
var (
	ErrNotWebSocket = errors.New("not a websocket upgrade request")
	ErrBadVersion   = errors.New("unsupported websocket version")
)

// ParseHeader splits a raw HTTP-like header block into a name -> value map.
// The request line is discarded, names are lower-cased, and whitespace is
// trimmed from both names and values.
func ParseHeader(raw string) map[string]string {
	lines := strings.Split(raw, "\r\n")
	headers := make(map[string]string)

	for i, line := range lines {
		if i == 0 || line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return headers
}

// AcceptKey computes the Sec-Websocket-Accept token for a client key:
// base64(sha1(key + GUID)).
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Handshake consumes the first read from a newly accepted stream, validates
// it as a WebSocket upgrade of version 13 and writes the 101 response. On
// error nothing has been written and the stream must be closed.
func Handshake(r io.Reader, w io.Writer) error {
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if err != nil {
		return err
	}

	headers := ParseHeader(string(buf[:n]))
	if headers["upgrade"] != "websocket" {
		return ErrNotWebSocket
	}
	if headers["sec-websocket-version"] != "13" {
		return ErrBadVersion
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-Websocket-Accept: " + AcceptKey(headers["sec-websocket-key"]) + "\r\n\r\n"
	_, err = w.Write([]byte(resp))
	return err
}
