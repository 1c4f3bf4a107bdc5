package functiontool

import (
	"encoding/json"
	"fmt"
)

// mapToStruct converts decoded JSON args into the typed args struct via a
// marshal round-trip, which handles numeric widening and nested types.
func mapToStruct(m map[string]any, target any) error {
	if m == nil {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}

	return nil
}
