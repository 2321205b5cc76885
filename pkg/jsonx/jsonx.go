// Package jsonx wraps the JSON codec used across the connectors so every
// package encodes through the same implementation.
package jsonx

import (
	json "github.com/goccy/go-json"
)

// Marshal encodes v as compact JSON.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent encodes v as indented JSON, the on-disk form for state
// records and raw JSON assets.
func MarshalIndent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
