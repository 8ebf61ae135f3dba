package plugins

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeConfiguration copies a flat plugin configuration into a typed struct
// whose fields carry json tags.
func DecodeConfiguration(configuration map[string]string, target any) error {
	data, err := json.Marshal(configuration)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode plugin configuration: %w", err)
	}

	return nil
}

// Bool reads a "true"/"false" configuration value; empty is false
func Bool(value string) (bool, error) {
	if value == "" {
		return false, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", value)
	}

	return parsed, nil
}

// Int reads a numeric configuration value, falling back when empty
func Int(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", value)
	}

	return parsed, nil
}
