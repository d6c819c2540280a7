package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

// compiledSchema validates tool arguments. A nil schema accepts anything.
type compiledSchema struct {
	sch *jsonschema.Schema
}

// compileSchema compiles schema once at registration. schema is anything
// that marshals to a JSON Schema document.
func compileSchema(schema any) (*compiledSchema, error) {
	if schema == nil {
		return &compiledSchema{}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return &compiledSchema{}, nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mem://schema.json", doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile("mem://schema.json")
	if err != nil {
		return nil, err
	}
	return &compiledSchema{sch: sch}, nil
}

func (c *compiledSchema) validate(args json.RawMessage) error {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return errmodel.Validation("arguments", nil, "Invalid JSON arguments: "+err.Error())
	}
	if _, ok := v.(map[string]any); !ok {
		return errmodel.Validation("arguments", nil, "Arguments must be a JSON object")
	}
	if c.sch == nil {
		return nil
	}
	if err := c.sch.Validate(v); err != nil {
		field := "arguments"
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			if loc := leaf(ve).InstanceLocation; len(loc) > 0 {
				field = strings.Join(loc, ".")
			}
		}
		return errmodel.Validation(field, nil, "Invalid arguments: "+oneLine(err.Error()))
	}
	return nil
}

// leaf follows the first cause down to the most specific failure.
func leaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
