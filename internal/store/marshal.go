package store

import (
	"encoding/json"
	"fmt"
)

// unmarshalJSON decodes a column written with wire.MarshalCanonical.
func unmarshalJSON(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
