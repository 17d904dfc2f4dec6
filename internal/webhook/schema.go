package webhook

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchemaSource is the structural shape every inbound notification
// body is checked against before extraction: an object, with doctype/name/
// action/timestamp/doc as strings (doc nested one level, mirroring Frappe's
// own event shape) when present. It exists to reject a body that isn't a
// JSON object at all with a clean 400 rather than a panic; doctype/name
// presence and action's enum are enforced after the doc fallback resolves,
// not here.
const payloadSchemaSource = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"doctype": {"type": "string"},
		"name": {"type": "string"},
		"action": {"type": "string"},
		"timestamp": {"type": "string"},
		"doc": {
			"type": "object",
			"properties": {
				"doctype": {"type": "string"},
				"name": {"type": "string"},
				"action": {"type": "string"}
			}
		}
	}
}`

var (
	payloadSchemaOnce sync.Once
	payloadSchema     *jsonschema.Schema
	payloadSchemaErr  error
)

func compiledPayloadSchema() (*jsonschema.Schema, error) {
	payloadSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(payloadSchemaSource)))
		if err != nil {
			payloadSchemaErr = err
			return
		}
		const resourceName = "webhook-payload.json"
		if err := compiler.AddResource(resourceName, doc); err != nil {
			payloadSchemaErr = err
			return
		}
		payloadSchema, payloadSchemaErr = compiler.Compile(resourceName)
	})
	return payloadSchema, payloadSchemaErr
}

// validatePayloadShape checks a decoded JSON body against the webhook
// notification's structural schema: is it an object, and do the fields it
// does carry have the right type. It runs before doctype/name extraction and
// the doc fallback, so it never rejects a payload for a missing field.
func validatePayloadShape(raw any) error {
	schema, err := compiledPayloadSchema()
	if err != nil {
		return fmt.Errorf("webhook: compile schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("webhook: payload validation: %w", err)
	}
	return nil
}
