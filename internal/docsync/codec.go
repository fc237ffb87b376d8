package docsync

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload indicates that an update payload could not be
// normalized into a canonical byte sequence.
var ErrMalformedPayload = errors.New("docsync: malformed update payload")

const bufferTagValue = "Buffer"

// Client environments disagree on the in-transit shape of binary updates:
// some send a plain array of byte values, some a Node-style tagged buffer
// object, some a typed array that serializes to a base64 string. The codec
// is the single point where that disagreement is resolved.

type taggedBuffer struct {
	Type string  `json:"type"`
	Data []int64 `json:"data"`
}

// DecodeWirePayload normalizes a wire-level update payload into canonical
// bytes. Accepted shapes: a JSON array of byte values, a tagged buffer
// object {"type":"Buffer","data":[...]}, and a base64 string.
func DecodeWirePayload(raw json.RawMessage) ([]byte, error) {
	trimmed := trimJSONSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	switch trimmed[0] {
	case '[':
		var values []int64
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return bytesFromValues(values)
	case '{':
		var buffer taggedBuffer
		if err := json.Unmarshal(trimmed, &buffer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if buffer.Type != bufferTagValue {
			return nil, fmt.Errorf("%w: unknown object tag %q", ErrMalformedPayload, buffer.Type)
		}
		if buffer.Data == nil {
			return nil, fmt.Errorf("%w: buffer object missing data", ErrMalformedPayload)
		}
		return bytesFromValues(buffer.Data)
	case '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64", ErrMalformedPayload)
		}
		if len(decoded) == 0 {
			return nil, fmt.Errorf("%w: empty buffer", ErrMalformedPayload)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized wire shape", ErrMalformedPayload)
	}
}

// WirePayload serializes canonical bytes back to the array-of-values wire
// shape used when serving updates for replay.
type WirePayload []byte

// MarshalJSON emits the payload as a JSON array of byte values.
func (payload WirePayload) MarshalJSON() ([]byte, error) {
	values := make([]int64, len(payload))
	for index, value := range payload {
		values[index] = int64(value)
	}
	return json.Marshal(values)
}

// EncodeWirePayload wraps canonical bytes for response serialization.
func EncodeWirePayload(payload []byte) WirePayload {
	return WirePayload(payload)
}

func bytesFromValues(values []int64) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedPayload)
	}
	payload := make([]byte, len(values))
	for index, value := range values {
		if value < 0 || value > 255 {
			return nil, fmt.Errorf("%w: byte value %d out of range", ErrMalformedPayload, value)
		}
		payload[index] = byte(value)
	}
	return payload, nil
}

func trimJSONSpace(raw json.RawMessage) json.RawMessage {
	start := 0
	for start < len(raw) && isJSONSpace(raw[start]) {
		start++
	}
	end := len(raw)
	for end > start && isJSONSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isJSONSpace(value byte) bool {
	return value == ' ' || value == '\t' || value == '\n' || value == '\r'
}
