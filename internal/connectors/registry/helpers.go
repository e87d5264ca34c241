package registry

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// LockKey derives a stable advisory lock key from a scope and a name.
func LockKey(scope, name string) int64 {
	scope = strings.ToLower(strings.TrimSpace(scope))
	name = strings.ToLower(strings.TrimSpace(name))

	h := fnv.New64a()
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func MarshalJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("registry: marshal json: %w", err))
	}
	return b
}

func NormalizeJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

// DecodeConfigData decodes a stored config_data document into a map.
func DecodeConfigData(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode config data: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ConfigString returns a trimmed string value from config data.
func ConfigString(configData map[string]any, key string) string {
	v, ok := configData[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
