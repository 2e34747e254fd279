package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Protocol errors.
var (
	ErrEmptyFrame     = errors.New("protocol: empty frame")
	ErrMissingPayload = errors.New("protocol: missing payload field")
)

// Envelope wraps a value for delivery to exactly one session.
type Envelope[T any] struct {
	Payload T `json:"payload"`
}

// Wrap returns the envelope for v.
func Wrap[T any](v T) Envelope[T] {
	return Envelope[T]{Payload: v}
}

// Encode serializes v inside an envelope. The result is sent as a single
// text frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(Envelope[any]{Payload: v})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	return data, nil
}

// Decode extracts the raw payload from an enveloped frame.
func Decode(frame []byte) (json.RawMessage, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	var env struct {
		Payload *json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if env.Payload == nil {
		return nil, ErrMissingPayload
	}
	return *env.Payload, nil
}

// DecodeInto decodes an enveloped frame's payload into dst.
func DecodeInto(frame []byte, dst any) error {
	raw, err := Decode(frame)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("protocol: decode payload: %w", err)
	}
	return nil
}

// Identify returns the identifying value sent to a new session.
func Identify(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
