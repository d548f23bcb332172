package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a flat YAML mapping of configuration keys. Keys may be
// written with or without the REPORTQ_ prefix; null values are skipped.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (map[string]string, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file key %q must be a scalar", key)
		}
		name := strings.ToUpper(strings.TrimSpace(key))
		if !strings.HasPrefix(name, EnvPrefix) {
			name = EnvPrefix + name
		}
		values[name] = fmt.Sprint(value)
	}
	return values, nil
}

// WithFallback returns a LookupFunc that prefers primary and falls back to
// values.
func WithFallback(primary LookupFunc, values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	}
}
