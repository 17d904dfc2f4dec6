package config

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// doctypesSchemaSource constrains the shape of the doctypes list: each
// entry needs a name, and exclude_fields, when present, must be a list of
// non-empty strings. This catches a malformed config file before it ever
// reaches the engine, where a bad exclude_fields entry would otherwise
// surface later as a silently wrong content hash.
const doctypesSchemaSource = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"exclude_fields": {
				"type": "array",
				"items": {"type": "string", "minLength": 1}
			}
		}
	}
}`

var (
	doctypesSchemaOnce sync.Once
	doctypesSchema     *jsonschema.Schema
	doctypesSchemaErr  error
)

func compiledDoctypesSchema() (*jsonschema.Schema, error) {
	doctypesSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(doctypesSchemaSource)))
		if err != nil {
			doctypesSchemaErr = err
			return
		}
		const resourceName = "doctypes.json"
		if err := compiler.AddResource(resourceName, doc); err != nil {
			doctypesSchemaErr = err
			return
		}
		doctypesSchema, doctypesSchemaErr = compiler.Compile(resourceName)
	})
	return doctypesSchema, doctypesSchemaErr
}

// ValidateDoctypesSchema checks doctypes against the JSON Schema above.
func ValidateDoctypesSchema(doctypes []Doctype) error {
	schema, err := compiledDoctypesSchema()
	if err != nil {
		return fmt.Errorf("erpsync: compile doctypes schema: %w", err)
	}
	instance := make([]any, len(doctypes))
	for i, d := range doctypes {
		entry := map[string]any{"name": d.Name}
		if len(d.ExcludeFields) > 0 {
			fields := make([]any, len(d.ExcludeFields))
			for j, f := range d.ExcludeFields {
				fields[j] = f
			}
			entry["exclude_fields"] = fields
		}
		instance[i] = entry
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("erpsync: doctypes config validation: %w", err)
	}
	return nil
}
