// Package tools defines the functions the realtime model may invoke over the
// data channel and the [Dispatcher] that executes them.
//
// Each sub-package exports a constructor returning a slice of [Tool] values
// ready for registration with [NewDispatcher].
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/MrWong99/docent/pkg/realtime"
)

// Handler executes a tool with JSON-encoded arguments and returns a JSON
// result. Implementations must be safe for concurrent use and must respect
// context cancellation.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool is one function exposed to the model.
type Tool struct {
	// Name is the function name the model calls.
	Name string

	// Description tells the model when to call the function.
	Description string

	// Params is a value of the argument struct type. Its JSON Schema is
	// generated from the struct's json and jsonschema tags. Nil means the
	// function takes no arguments.
	Params any

	Handler Handler
}

// emptyParameters is declared for tools without arguments.
var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

// Definition returns the model-facing declaration of t.
func (t Tool) Definition() (realtime.Tool, error) {
	def := realtime.Tool{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  emptyParameters,
	}
	if t.Params == nil {
		return def, nil
	}

	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
		ExpandedStruct: true,
	}
	typ := reflect.TypeOf(t.Params)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	schema := reflector.ReflectFromType(typ)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return realtime.Tool{}, fmt.Errorf("tools: %s: marshal parameter schema: %w", t.Name, err)
	}
	def.Parameters = data
	return def, nil
}
