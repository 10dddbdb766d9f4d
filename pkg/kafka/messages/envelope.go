package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps every published event with its type and schema version so
// consumers can route and evolve payloads independently.
type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// Seal marshals data into an envelope of the given type and version.
func Seal(msgType string, version int, id string, ts time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
	}
	return json.Marshal(Envelope{
		Type:    msgType,
		Version: version,
		ID:      id,
		TS:      ts.UTC(),
		Data:    raw,
	})
}

// Open parses an envelope without decoding its data.
func Open(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}
