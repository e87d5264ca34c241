package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidConfig is returned when config_data does not satisfy the connector schema.
var ErrInvalidConfig = errors.New("invalid connector config")

// ConfigError lists the schema violations of a config_data document.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid connector config: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidateConfig checks configData against the definition's JSON schema.
func (d Definition) ValidateConfig(configData map[string]any) error {
	if configData == nil {
		configData = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(d.Schema()),
		gojsonschema.NewGoLoader(configData),
	)
	if err != nil {
		return fmt.Errorf("validate %s config: %w", d.Key, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.Field()+": "+re.Description())
	}
	return &ConfigError{Problems: problems}
}

// ValidateSchema checks that raw is a JSON Schema document describing an
// object, the only shape config_data can take.
func ValidateSchema(raw json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return &ConfigError{Problems: []string{"config_schema must be a JSON object"}}
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
		return &ConfigError{Problems: []string{"config_schema: " + err.Error()}}
	}
	if t, ok := doc["type"]; ok && t != "object" {
		return &ConfigError{Problems: []string{`config_schema: type must be "object"`}}
	}
	return nil
}
