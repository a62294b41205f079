// internal/config/schema.go
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// ValidateSchema checks raw YAML against the embedded JSON schema.
// It catches structural mistakes (unknown keys, wrong types) before decoding.
func ValidateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("config is empty")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return formatSchemaErrors(result.Errors())
	}
	return nil
}

func formatSchemaErrors(errs []gojsonschema.ResultError) error {
	var b strings.Builder
	b.WriteString("configuration schema errors:")
	for i, e := range errs {
		fmt.Fprintf(&b, "\n  %d. %s: %s", i+1, e.Field(), e.Description())
	}
	return fmt.Errorf("%s", b.String())
}

// SchemaJSON returns the embedded schema.
func SchemaJSON() string {
	return string(schemaJSON)
}
