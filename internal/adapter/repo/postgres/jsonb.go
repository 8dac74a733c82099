package postgres

import (
	"encoding/json"
	"fmt"
)

// marshalStrings encodes a string slice as a JSONB array, normalizing nil
// to an empty array so the column is never NULL.
func marshalStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil, fmt.Errorf("marshal string array: %w", err)
	}
	return b, nil
}

// unmarshalStrings decodes a JSONB array column back into a string slice.
func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, fmt.Errorf("unmarshal string array: %w", err)
	}
	return ss, nil
}
