package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const runRequestSchema = `{
	"type": "object",
	"required": ["repository"],
	"additionalProperties": false,
	"properties": {
		"repository": {"type": "string", "minLength": 1},
		"commit":     {"type": "string"},
		"patch":      {"type": "string"},
		"image":      {"type": "string"},
		"command":    {"type": "string"}
	}
}`

var schemaCache sync.Map // map[string]*jsonschema.Schema

// decodeValid validates body against the named schema and then decodes it
// into out.
func decodeValid(name, schema string, body []byte, out any) error {
	compiled, err := compiledSchema(name, schema)
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s: %s", name, flatten(err))
	}
	return json.Unmarshal(body, out)
}

func compiledSchema(name, schema string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	def, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}

// flatten turns a multi-line validation error into one line for API responses.
func flatten(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "; ")
}
