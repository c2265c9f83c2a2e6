package logic

import (
	"encoding/json"
	"fmt"
)

// Recognised command keys.
const (
	KeyEnabled = "enabled"
	KeyOn      = "on"
)

// ParseCommand decodes a set-topic payload. The payload must be a JSON
// object; recognised keys are coerced to booleans by truthiness and any
// other key is ignored.
func ParseCommand(payload []byte) (Command, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if fields == nil {
		return Command{}, fmt.Errorf("parse command: payload is not an object")
	}

	var cmd Command
	if v, ok := fields[KeyEnabled]; ok {
		b := Truthy(v)
		cmd.Enabled = &b
	}
	if v, ok := fields[KeyOn]; ok {
		b := Truthy(v)
		cmd.On = &b
	}
	return cmd, nil
}

// Truthy coerces a decoded JSON value to a boolean: false, null, 0, "",
// [] and {} are false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
