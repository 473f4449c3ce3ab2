package session

import (
	"encoding/json"
	"fmt"
)

// Metadata is the structured content of a session's metadata column.
type Metadata struct {
	QueueIDs          []string          `json:"queue_ids,omitempty"`
	QueuePhase        int               `json:"queue_phase,omitempty"`
	RetryModification string            `json:"retry_modification,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// ParseMetadata decodes a stored metadata column. Empty input yields zero metadata.
func ParseMetadata(raw string) (Metadata, error) {
	var m Metadata
	if raw == "" || raw == "null" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse session metadata: %w", err)
	}
	return m, nil
}

// Encode serializes metadata for storage.
func (m Metadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode session metadata: %w", err)
	}
	return string(b), nil
}
