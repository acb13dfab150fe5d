package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/collector"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/effective-security/agentloop/store"
	"github.com/invopop/jsonschema"
)

// FinalAnswerName is the reserved action that terminates the loop
const FinalAnswerName = "final_answer"

// DefaultOutputType is used when the tool does not specify one
const DefaultOutputType = "string"

// Response is returned by a tool handler
type Response struct {
	// Raw is the structured result, recorded for audit
	Raw any
	// Text is the user facing response appended to the conversation,
	// if empty, the Raw value is rendered as text
	Text string
}

// ToolContext provides the infrastructure for the tool call,
// it is never part of the input schema.
type ToolContext struct {
	CallID    string
	TenantID  string
	ChatID    string
	AgentName string
	Store     store.ConversationStore
	Collector *collector.Collector
	Clock     func() time.Time
}

// Now returns the current time of the call
func (tc *ToolContext) Now() time.Time {
	if tc == nil || tc.Clock == nil {
		return time.Now()
	}
	return tc.Clock()
}

// Handler executes the tool with validated parameters
type Handler func(ctx context.Context, tc *ToolContext, params Params) (*Response, error)

// Descriptor describes a tool available to the agent
type Descriptor struct {
	name        string
	description string
	outputType  string
	schema      Schema
	handler     Handler
}

// Option configures the Descriptor
type Option func(*Descriptor)

// WithOutputType sets the output type reported to the LLM
func WithOutputType(t string) Option {
	return func(d *Descriptor) {
		d.outputType = t
	}
}

// New returns a validated tool descriptor, or SchemaError
func New(name, description string, schema Schema, handler Handler, opts ...Option) (*Descriptor, error) {
	d := &Descriptor{
		name:        name,
		description: description,
		outputType:  DefaultOutputType,
		schema:      schema,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(d)
	}

	err := validateDeclaration(&declaration{
		Name:        d.name,
		Description: d.description,
		OutputType:  d.outputType,
		Schema:      d.schema,
	})
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, schemaErr(name, "handler", "must not be nil")
	}
	return d, nil
}

// MustNew returns a tool descriptor, or panics
func MustNew(name, description string, schema Schema, handler Handler, opts ...Option) *Descriptor {
	d, err := New(name, description, schema, handler, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Name() string {
	return d.name
}

func (d *Descriptor) Description() string {
	return d.description
}

func (d *Descriptor) OutputType() string {
	return d.outputType
}

func (d *Descriptor) Schema() Schema {
	return d.schema
}

// String returns the tool description in the prompt format
func (d *Descriptor) String() string {
	return fmt.Sprintf("- %s: %s\n    Takes inputs: %s\n    Returns an output of type: %s",
		d.name, d.description, d.schema.String(), d.outputType)
}

// JSONSchema returns the object schema of the tool inputs
func (d *Descriptor) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: d.description,
		Properties:  d.schema.Properties(),
		Required:    d.schema.Required(),
	}
}

// Invoke checks the params against the schema and calls the handler.
// A panic in the handler is returned as an error.
func (d *Descriptor) Invoke(ctx context.Context, tc *ToolContext, params Params) (res *Response, err error) {
	if err = d.schema.Check(params); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.Newf("tool %s panicked: %v", d.name, r)
		}
	}()

	res, err = d.handler(ctx, tc, params)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Response{}
	}
	if res.Text == "" {
		res.Text = llmutils.Stringify(res.Raw)
	}
	return res, nil
}

// Callback is notified about tool calls
type Callback interface {
	OnToolStart(ctx context.Context, tool *Descriptor, agentName string, params Params)
	OnToolEnd(ctx context.Context, tool *Descriptor, agentName string, params Params, output string)
	OnToolError(ctx context.Context, tool *Descriptor, agentName string, params Params, err error)
}
