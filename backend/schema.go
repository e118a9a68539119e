package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const ackSchemaJSON = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string"},
    "job_id": {"type": ["string", "null"]},
    "error":  {"type": ["string", "null"]}
  }
}`

const statusSchemaJSON = `{
  "type": "object",
  "properties": {
    "status":       {"type": ["string", "null"]},
    "download_url": {"type": ["string", "null"]},
    "server_path":  {"type": ["string", "null"]},
    "error":        {"type": ["string", "null"]}
  }
}`

// errUnexpectedShape marks a well-formed JSON body that fails its schema.
var errUnexpectedShape = errors.New("unexpected response shape")

// schemaSet holds the compiled shapes of job payloads. Those payloads drive
// the poller's state machine, so they are checked before being trusted.
type schemaSet struct {
	ack    *jsonschema.Schema
	status *jsonschema.Schema
}

func compileSchemas() (*schemaSet, error) {
	ack, err := compileSchema("ack.json", ackSchemaJSON)
	if err != nil {
		return nil, err
	}
	status, err := compileSchema("status.json", statusSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &schemaSet{ack: ack, status: status}, nil
}

func compileSchema(name, doc string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(doc))); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// decodeValidated checks data against schema and then decodes it into out.
func decodeValidated(schema *jsonschema.Schema, data []byte, out any) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", errUnexpectedShape, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
