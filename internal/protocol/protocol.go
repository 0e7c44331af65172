package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize bounds a single encoded envelope.
	MaxFrameSize = 10 * 1024 * 1024 // 10MB max frame size
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformedFrame is returned for frames that are not a single JSON value.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrDuplicateKey is returned when a JSON object repeats a key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Encode marshals v as a JSON text frame.
func Encode(v any) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(out) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d exceeds maximum %d bytes", ErrFrameTooLarge, len(out), MaxFrameSize)
	}
	return out, nil
}

// Decode parses a JSON frame into generic values (map[string]any, []any,
// string, json.Number, bool, nil). Numbers stay json.Number so integers
// beyond 2^53 keep their digits. Objects repeating a key at any depth are
// rejected, since encoding/json would otherwise keep the last value silently.
func Decode(data []byte) (any, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d exceeds maximum %d bytes", ErrFrameTooLarge, len(data), MaxFrameSize)
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after value", ErrMalformedFrame)
	}

	if err := checkUniqueKeys(json.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return v, nil
}

func checkUniqueKeys(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch delim {
	case '{':
		seen := make(map[string]struct{})
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			key, _ := kt.(string)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
			}
			seen[key] = struct{}{}
			if err := checkUniqueKeys(dec); err != nil {
				return err
			}
		}
	case '[':
		for dec.More() {
			if err := checkUniqueKeys(dec); err != nil {
				return err
			}
		}
	}

	// closing delimiter
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
