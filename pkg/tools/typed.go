package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

type hints struct {
	readOnly   bool
	idempotent bool
}

var (
	reads      = hints{readOnly: true, idempotent: true}
	writes     = hints{}
	idempotent = hints{idempotent: true}
)

// funcTool binds a typed argument struct to a handler. The input schema is
// derived from A's json and jsonschema tags.
type funcTool[A any] struct {
	desc Descriptor
	fn   func(context.Context, A) (Result, error)
}

func newTool[A any](name, description string, h hints, fn func(context.Context, A) (Result, error)) Tool {
	schema, err := jsonschema.For[A](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %s: %v", name, err))
	}
	return &funcTool[A]{
		desc: Descriptor{
			Name:        name,
			Title:       Title(name),
			Description: description,
			InputSchema: schema,
			ReadOnly:    h.readOnly,
			Idempotent:  h.idempotent,
		},
		fn: fn,
	}
}

func (t *funcTool[A]) Describe() Descriptor { return t.desc }

func (t *funcTool[A]) Invoke(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args A
	if err := decodeArgs(raw, &args); err != nil {
		return Result{}, err
	}
	return t.fn(ctx, args)
}

// decodeArgs maps JSON arguments onto out by json field name, coercing
// loosely typed values such as "5" for an int.
func decodeArgs(raw json.RawMessage, out any) error {
	var m map[string]any
	if err := json.Unmarshal(normalizeArgs(raw), &m); err != nil {
		return errmodel.Validation("arguments", nil, "Invalid JSON arguments: "+err.Error())
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errmodel.API(0, "Unexpected error: "+err.Error(), nil)
	}
	if err := dec.Decode(m); err != nil {
		return errmodel.Validation("arguments", nil, "Invalid arguments: "+oneLine(err.Error()))
	}
	return nil
}

// Title turns a snake_case tool name into a display title: "get_dataset" is
// "Get Dataset".
func Title(name string) string {
	words := strings.Fields(strcase.ToDelimited(name, ' '))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
