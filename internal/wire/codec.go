package wire

import (
	"encoding/json"
	"fmt"
)

// Encode validates an envelope and returns its canonical encoding.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return MarshalCanonical(e)
}

// Decode parses and validates an envelope. Unknown actions and missing
// required fields are errors; callers drop such frames.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}
