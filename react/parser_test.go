package react_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/react"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FinalAnswer(t *testing.T) {
	raw := "Thought: ok\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"done\"}}<end_action>"
	d, err := react.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "final_answer", d.Action)
	assert.Equal(t, "done", d.FinalAnswer)
	assert.Equal(t, "ok", d.Thought)
	assert.True(t, d.IsFinal())
	assert.Equal(t, raw, d.Content)
}

func TestParse_Action(t *testing.T) {
	raw := `Thought: I need to send the email.
Action:
` + "```json" + `
{
  "action": "[send_email]",
  "action_input": {"to": "bob@example.com", "retries": 3, "urgent": true}
}
` + "```" + `<end_action>
Observation: this is ignored<end_action>`

	d, err := react.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "send_email", d.Action)
	assert.Equal(t, "I need to send the email.", d.Thought)
	assert.False(t, d.IsFinal())
	assert.Empty(t, d.FinalAnswer)
	assert.Equal(t, map[string]any{
		"to":      "bob@example.com",
		"retries": json.Number("3"),
		"urgent":  true,
	}, d.Parameters)
	assert.NotContains(t, d.Content, "Observation")
	assert.True(t, len(d.Content) > 0 && d.Content[len(d.Content)-len(react.EndMarker):] == react.EndMarker)
}

func TestParse_NonStringAnswer(t *testing.T) {
	d, err := react.Parse(`Action: {"action":"final_answer","action_input":{"answer":{"events":2}}}<end_action>`)
	require.NoError(t, err)
	assert.Equal(t, `{"events":2}`, d.FinalAnswer)
	assert.Empty(t, d.Thought)

	d, err = react.Parse(`Action: {"action":"<final_answer>","action_input":{"answer":42}}<end_action>`)
	require.NoError(t, err)
	assert.Equal(t, "final_answer", d.Action)
	assert.Equal(t, `42`, d.FinalAnswer)
}

func TestParse_Errors(t *testing.T) {
	tcases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"no marker", "Thought: ok\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"done\"}}", "missing <end_action> marker"},
		{"no action", "Thought: ok\n{\"action\":\"x\",\"action_input\":{}}<end_action>", `missing "Action:" before <end_action>`},
		{"action after marker", "Thought: ok<end_action>\nAction:\n{}", `missing "Action:" before <end_action>`},
		{"empty block", "Action:\n<end_action>", "empty action block"},
		{"bad json", "Action:\n{\"action\": <end_action>", "invalid action JSON: unexpected EOF"},
		{"array", "Action:\n[1,2]<end_action>", "invalid action JSON: expected JSON object"},
		{"null", "Action:\nnull<end_action>", "invalid action JSON: expected JSON object"},
		{"trailing", "Action:\n{\"action\":\"x\",\"action_input\":{}} {}<end_action>", "invalid action JSON: unexpected data after JSON object"},
		{"action not string", "Action:\n{\"action\":1,\"action_input\":{}}<end_action>", `"action" must be a string`},
		{"action empty", "Action:\n{\"action\":\"[ ]\",\"action_input\":{}}<end_action>", `"action" must not be empty`},
		{"no input", "Action:\n{\"action\":\"x\"}<end_action>", `missing "action_input"`},
		{"input not object", "Action:\n{\"action\":\"x\",\"action_input\":\"y\"}<end_action>", `"action_input" must be an object`},
		{"no answer", "Action:\n{\"action\":\"final_answer\",\"action_input\":{}}<end_action>", `missing "answer" in final_answer input`},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := react.Parse(tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, react.ErrParse))

			var pe *react.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.reason, pe.Reason)
			assert.Equal(t, tc.raw, pe.Raw)
			assert.Equal(t, "failed to parse LLM response: "+tc.reason, err.Error())
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	inputs := []string{
		"Thought: ok\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"done\"}}<end_action>",
		"Action:\n{\"action\":\"list_events\",\"action_input\":{\"date_min\":\"2025-01-01\",\"date_max\":\"2025-01-31\",\"n\":1.5}}<end_action>",
	}
	for _, raw := range inputs {
		d1, err := react.Parse(raw)
		require.NoError(t, err)
		d2, err := react.Parse(raw)
		require.NoError(t, err)
		if diff := cmp.Diff(d1, d2); diff != "" {
			t.Errorf("Parse() mismatch (-first +second):\n%s", diff)
		}

		// parsing the stored content yields the same decision
		d3, err := react.Parse(d1.Content)
		require.NoError(t, err)
		if diff := cmp.Diff(d1, d3); diff != "" {
			t.Errorf("Parse(Content) mismatch (-first +content):\n%s", diff)
		}
	}
}

func TestFormat(t *testing.T) {
	s, err := react.Format("I should search", "web_search", map[string]any{"query": "golang", "limit": 3})
	require.NoError(t, err)
	exp := "Thought: I should search\nAction:\n{\"action\":\"web_search\",\"action_input\":{\"limit\":3,\"query\":\"golang\"}}<end_action>"
	assert.Equal(t, exp, s)

	d, err := react.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "web_search", d.Action)
	assert.Equal(t, "golang", d.Parameters["query"])

	s, err = react.Format("", "list_events", nil)
	require.NoError(t, err)
	assert.Equal(t, "Action:\n{\"action\":\"list_events\",\"action_input\":{}}<end_action>", s)

	s = react.FinalAnswerReply("done", "Hello!")
	d, err = react.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", d.FinalAnswer)
	assert.Equal(t, "done", d.Thought)
}
