package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, _ *tools.ToolContext, p tools.Params) (*tools.Response, error) {
	return &tools.Response{Raw: map[string]any{"to": p.String("to")}}, nil
}

func TestNew(t *testing.T) {
	d, err := tools.New("send_email", "Sends an email.", emailSchema, echoHandler)
	require.NoError(t, err)
	assert.Equal(t, "send_email", d.Name())
	assert.Equal(t, "Sends an email.", d.Description())
	assert.Equal(t, tools.DefaultOutputType, d.OutputType())
	assert.Len(t, d.Schema().Params, 3)

	exp := "- send_email: Sends an email.\n" +
		"    Takes inputs: " + emailSchema.String() + "\n" +
		"    Returns an output of type: string"
	assert.Equal(t, exp, d.String())

	d2 := tools.MustNew("noop", "Does nothing.", tools.Schema{}, echoHandler, tools.WithOutputType("null"))
	assert.Equal(t, "null", d2.OutputType())

	tcases := []struct {
		name        string
		toolName    string
		description string
		handler     tools.Handler
		opts        []tools.Option
		exp         string
	}{
		{"empty name", "", "d", echoHandler, nil, `invalid tool schema "": Name: must not be empty`},
		{"empty description", "t", "", echoHandler, nil, `invalid tool schema "t": Description: must not be empty`},
		{"reserved", "final_answer", "d", echoHandler, nil, `invalid tool schema "final_answer": Name: "final_answer" is reserved`},
		{"brackets", "<t>", "d", echoHandler, nil, `invalid tool schema "<t>": Name: must not contain spaces or brackets`},
		{"nil handler", "t", "d", nil, nil, `invalid tool schema "t": handler: must not be nil`},
		{"output type", "t", "d", echoHandler, []tools.Option{tools.WithOutputType("blob")}, `invalid tool schema "t": OutputType: unsupported type "blob", only supported: string, integer, number, boolean, array, object, any, null`},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tools.New(tc.toolName, tc.description, tools.Schema{}, tc.handler, tc.opts...)
			require.Error(t, err)
			assert.EqualError(t, err, tc.exp)
			assert.True(t, errors.Is(err, tools.ErrSchema))
		})
	}

	assert.Panics(t, func() {
		tools.MustNew("", "d", tools.Schema{}, echoHandler)
	})
}

func TestDescriptor_JSONSchema(t *testing.T) {
	d := tools.MustNew("send_email", "Sends an email.", emailSchema, echoHandler)
	js := llmutils.ToJSON(d.JSONSchema())
	assert.Equal(t, `{"properties":{"to":{"type":"string","description":"Recipient"},"subject":{"type":"string","description":"Subject","nullable":true},"count":{"type":"integer","description":"Count","nullable":true}},"type":"object","required":["to"],"description":"Sends an email."}`, js)
}

func TestDescriptor_Invoke(t *testing.T) {
	ctx := context.Background()
	d := tools.MustNew("send_email", "Sends an email.", emailSchema, echoHandler)

	res, err := d.Invoke(ctx, nil, tools.Params{"to": "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, `{"to":"a@b.c"}`, res.Text)

	_, err = d.Invoke(ctx, nil, tools.Params{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrInvalidInput))

	panicky := tools.MustNew("panicky", "Panics.", tools.Schema{},
		func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
			panic("boom")
		})
	_, err = panicky.Invoke(ctx, nil, tools.Params{})
	assert.EqualError(t, err, "tool panicky panicked: boom")

	failing := tools.MustNew("failing", "Fails.", tools.Schema{},
		func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
			return nil, tools.InvalidInputf("bad email: %s", "x")
		})
	_, err = failing.Invoke(ctx, nil, tools.Params{})
	assert.EqualError(t, err, "bad email: x")
	assert.True(t, errors.Is(err, tools.ErrInvalidInput))

	empty := tools.MustNew("empty", "Returns nothing.", tools.Schema{},
		func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
			return nil, nil
		})
	res, err = empty.Invoke(ctx, nil, tools.Params{})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestToolContext_Now(t *testing.T) {
	var tc *tools.ToolContext
	assert.False(t, tc.Now().IsZero())

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tc = &tools.ToolContext{Clock: func() time.Time { return fixed }}
	assert.Equal(t, fixed, tc.Now())
}
