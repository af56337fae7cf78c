package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts a YAML (or JSON) config document to JSON bytes
// so the strict JSON decoder (DisallowUnknownFields) serves both formats.
// Environment references in string values are expanded along the way.
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format := "yaml"

	var v any
	if ext != ".yaml" && ext != ".yml" {
		format = "json"
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("json unmarshal: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("yaml unmarshal: %w", err)
		}
	}

	v = normalizeYAML(v)
	v = expandEnvTree(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, format, fmt.Errorf("%s->json marshal: %w", format, err)
	}
	return j, format, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a string. A set variable
// wins (even when empty); otherwise the inline default applies; a plain
// ${VAR} with nothing set expands to the empty string.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

// expandEnvTree applies ExpandEnv to every string value. Map keys are left
// untouched.
func expandEnvTree(in any) any {
	switch x := in.(type) {
	case string:
		return ExpandEnv(x)
	case map[string]any:
		for k, v := range x {
			x[k] = expandEnvTree(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = expandEnvTree(x[i])
		}
		return x
	default:
		return in
	}
}
