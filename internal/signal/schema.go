package signal

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchema validates the minimal contract of an external signal payload
// before any field is extracted. Everything beyond these keys is metadata.
const payloadSchema = `{
  "type": "object",
  "required": ["action", "timestamp"],
  "properties": {
    "action": {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "strength": {"type": "number", "minimum": 0},
    "timestamp": {"type": "string"},
    "metadata": {"type": "object"}
  }
}`

var compiledPayloadSchema = mustCompileSchema(payloadSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("signal_payload.json", strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("signal schema resource: %v", err))
	}
	schema, err := c.Compile("signal_payload.json")
	if err != nil {
		panic(fmt.Sprintf("signal schema compile: %v", err))
	}
	return schema
}

// ValidatePayload checks a decoded JSON document against the signal contract.
func ValidatePayload(doc any) error {
	if err := compiledPayloadSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
