package ipc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema constrains incoming envelopes before any handler sees
// them. Unknown envelope types are rejected here, so handlers only deal
// with well-formed requests.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "imeswitchd/envelope.schema.json",
  "type": "object",
  "required": ["type"],
  "additionalProperties": false,
  "properties": {
    "type": {
      "type": "string",
      "enum": [
        "hello",
        "surface_opened",
        "surface_closed",
        "cursor_moved",
        "focus_gained",
        "focus_lost",
        "document_changed",
        "status",
        "enable",
        "disable",
        "history",
        "subscribe",
        "ping"
      ]
    },
    "seq": {
      "type": "integer",
      "minimum": 0
    },
    "payload": {
      "type": "object"
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
)

func schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("envelope.schema.json", strings.NewReader(envelopeSchema)); err != nil {
			panic(fmt.Sprintf("ipc: add envelope schema: %v", err))
		}
		compiledSchema = compiler.MustCompile("envelope.schema.json")
	})
	return compiledSchema
}

// ValidateEnvelope checks one raw line against the envelope schema.
func ValidateEnvelope(data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema().Validate(instance); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	return nil
}
