package genx

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

var _ Tool = (*FuncTool)(nil)

// FuncTool is a function a model may call. Argument is the JSON schema of
// its single argument, derived from the Go type given to NewFuncTool.
type FuncTool struct {
	Name        string
	Description string
	Argument    *jsonschema.Schema

	// Invoke runs the tool for call. arg is the raw JSON argument text.
	Invoke func(ctx context.Context, call *FuncCall, arg string) (any, error)

	typeSchemas map[reflect.Type]*jsonschema.Schema
}

func (*FuncTool) isTool() {}

// NewFuncCall returns a call of tool with the given JSON arguments.
func (tool *FuncTool) NewFuncCall(args string) *FuncCall {
	return &FuncCall{Name: tool.Name, Arguments: args, tool: tool}
}

// Decode parses a JSON argument of tool into a new *ArgType, repairing
// malformed JSON when possible.
func Decode[ArgType any](arg string) (*ArgType, error) {
	var v ArgType
	if err := unmarshalJSON([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("genx: unmarshal %q: %w", arg, err)
	}
	return &v, nil
}

type FuncToolOption interface {
	applyToFuncTool(*FuncTool)
}

type funcToolOption func(*FuncTool)

func (fn funcToolOption) applyToFuncTool(t *FuncTool) { fn(t) }

// WithSchema overrides the schema derived for Go type T anywhere inside the
// argument type.
func WithSchema[T any](s *jsonschema.Schema) FuncToolOption {
	return funcToolOption(func(t *FuncTool) {
		t.typeSchemas[reflect.TypeFor[T]()] = s
	})
}

// WithInvoke sets the function run by FuncCall.Invoke. The argument is
// decoded into T first.
func WithInvoke[T any](fn func(ctx context.Context, call *FuncCall, arg T) (any, error)) FuncToolOption {
	return funcToolOption(func(t *FuncTool) {
		t.Invoke = func(ctx context.Context, call *FuncCall, arg string) (any, error) {
			v, err := Decode[T](arg)
			if err != nil {
				return nil, err
			}
			return fn(ctx, call, *v)
		}
	})
}

// NewFuncTool creates a tool whose argument schema is inferred from ArgType.
// Without WithInvoke, invoking the tool returns the decoded *ArgType.
func NewFuncTool[ArgType any](name, description string, opts ...FuncToolOption) (*FuncTool, error) {
	tool := &FuncTool{
		Name:        name,
		Description: description,
		typeSchemas: make(map[reflect.Type]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt.applyToFuncTool(tool)
	}
	arg, err := jsonschema.For[ArgType](&jsonschema.ForOptions{
		TypeSchemas: tool.typeSchemas,
	})
	if err != nil {
		return nil, fmt.Errorf("genx: schema for tool %s: %w", name, err)
	}
	tool.Argument = arg
	if tool.Invoke == nil {
		tool.Invoke = func(_ context.Context, _ *FuncCall, arg string) (any, error) {
			return Decode[ArgType](arg)
		}
	}
	return tool, nil
}

func MustNewFuncTool[ArgType any](name, description string, opts ...FuncToolOption) *FuncTool {
	tool, err := NewFuncTool[ArgType](name, description, opts...)
	if err != nil {
		panic(err)
	}
	return tool
}
