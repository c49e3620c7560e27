package storage

import (
	"encoding/json"
	"fmt"
)

// Record is a stored JSON document together with its CAS version.
type Record struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// Encode marshals v into a Record carrying the given version.
func Encode(v any, version uint64) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Record{Data: data, Version: version}, nil
}

// Decode unmarshals the record payload into v.
func Decode(rec *Record, v any) error {
	if rec == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}
