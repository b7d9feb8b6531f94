package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "eduscale://rules/schema.json"

type ruleFile struct {
	Rules []Rule `json:"rules"`
}

// Load reads a rule file, validates it against the embedded JSON schema, and
// returns the declared rules in order.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes a rule document.
func Parse(data []byte) ([]Rule, error) {
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("register schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("rules document invalid: %w", err)
	}

	var doc ruleFile
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	for i := range doc.Rules {
		doc.Rules[i].Name = strings.TrimSpace(doc.Rules[i].Name)
	}
	return doc.Rules, nil
}
