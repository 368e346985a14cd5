// Package jsonutil reads loosely-typed fields out of third-party JSON payloads.
package jsonutil

import (
	"bytes"
	"encoding/json"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling platforms
// that send identifiers as numbers in one payload and strings in another.
// Numbers keep their exact textual form. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		if boolVal {
			return "true"
		}
		return "false"
	}

	// Fallback: return raw string representation
	return string(raw)
}

// StringAt walks nested objects along path and returns the leaf as a string.
// The second result is false when any step is missing, is not an object, or
// the leaf is null.
func StringAt(raw json.RawMessage, path ...string) (string, bool) {
	current := raw
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil || obj == nil {
			return "", false
		}
		next, ok := obj[key]
		if !ok {
			return "", false
		}
		current = next
	}

	trimmed := bytes.TrimSpace(current)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", false
	}
	return FlexibleStringValue(trimmed), true
}

// OptionalStringAt is StringAt returning nil when the value is absent.
func OptionalStringAt(raw json.RawMessage, path ...string) *string {
	s, ok := StringAt(raw, path...)
	if !ok {
		return nil
	}
	return &s
}
