// Package react parses and formats the Thought/Action wire grammar
// exchanged with the LLM.
package react

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/tidwall/sjson"
)

const (
	// EndMarker terminates the action block
	EndMarker = "<end_action>"
	// ActionLabel separates the thought from the action block
	ActionLabel = "Action:"
	// ThoughtLabel optionally prefixes the thought
	ThoughtLabel = "Thought:"
	// FinalAnswer is the action that terminates the loop
	FinalAnswer = "final_answer"
	// AnswerKey is the action input of FinalAnswer
	AnswerKey = "answer"
)

// ErrParse is matched by every ParseError
var ErrParse = errors.New("failed to parse LLM response")

// ParseError is returned when the LLM reply does not follow the grammar
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "failed to parse LLM response: " + e.Reason
}

// Is allows errors.Is(err, ErrParse)
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Decision is the parsed LLM reply
type Decision struct {
	Thought    string         `json:"thought" yaml:"thought"`
	Action     string         `json:"action" yaml:"action"`
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
	// FinalAnswer is set when Action is final_answer
	FinalAnswer string `json:"final_answer,omitempty" yaml:"final_answer,omitempty"`
	// Content is the reply truncated at the end marker, with the marker,
	// it is stored as the assistant message.
	Content string `json:"content" yaml:"content"`
}

// IsFinal returns true if the decision terminates the loop
func (d *Decision) IsFinal() bool {
	return d.Action == FinalAnswer
}

func parseErr(raw, format string, args ...any) error {
	return &ParseError{
		Reason: fmt.Sprintf(format, args...),
		Raw:    raw,
	}
}

var actionReplacer = strings.NewReplacer("[", "", "]", "", "<", "", ">", "")

// Parse converts the LLM reply into a Decision
func Parse(raw string) (*Decision, error) {
	idx := strings.Index(raw, EndMarker)
	if idx < 0 {
		return nil, parseErr(raw, "missing %s marker", EndMarker)
	}
	truncated := strings.TrimSpace(raw[:idx])

	thought, block, ok := strings.Cut(truncated, ActionLabel)
	if !ok {
		return nil, parseErr(raw, "missing %q before %s", ActionLabel, EndMarker)
	}
	thought = strings.TrimSpace(thought)
	thought = strings.TrimSpace(strings.TrimPrefix(thought, ThoughtLabel))

	block = strings.TrimSpace(llmutils.TrimBackticks(strings.TrimSpace(block)))
	if block == "" {
		return nil, parseErr(raw, "empty action block")
	}

	obj, err := decodeObject(block)
	if err != nil {
		return nil, parseErr(raw, "invalid action JSON: %s", err.Error())
	}

	action, ok := obj["action"].(string)
	if !ok {
		return nil, parseErr(raw, `"action" must be a string`)
	}
	action = strings.TrimSpace(actionReplacer.Replace(action))
	if action == "" {
		return nil, parseErr(raw, `"action" must not be empty`)
	}

	input, ok := obj["action_input"]
	if !ok {
		return nil, parseErr(raw, `missing "action_input"`)
	}
	params, ok := input.(map[string]any)
	if !ok {
		return nil, parseErr(raw, `"action_input" must be an object`)
	}

	d := &Decision{
		Thought:    thought,
		Action:     action,
		Parameters: params,
		Content:    truncated + EndMarker,
	}

	if action == FinalAnswer {
		answer, ok := params[AnswerKey]
		if !ok {
			return nil, parseErr(raw, `missing "answer" in final_answer input`)
		}
		switch v := answer.(type) {
		case string:
			d.FinalAnswer = v
		default:
			d.FinalAnswer = llmutils.ToJSON(v)
		}
	}
	return d, nil
}

func decodeObject(block string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("expected JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return obj, nil
}

// Format returns a reply that follows the grammar
func Format(thought, action string, input map[string]any) (string, error) {
	if input == nil {
		input = map[string]any{}
	}
	js, err := sjson.SetBytes([]byte(`{}`), "action", action)
	if err != nil {
		return "", errors.WithStack(err)
	}
	js, err = sjson.SetBytes(js, "action_input", input)
	if err != nil {
		return "", errors.WithStack(err)
	}

	var b bytes.Buffer
	if thought != "" {
		b.WriteString(ThoughtLabel + " " + thought + "\n")
	}
	b.WriteString(ActionLabel + "\n")
	b.Write(js)
	b.WriteString(EndMarker)
	return b.String(), nil
}

// FinalAnswerReply returns a final_answer reply
func FinalAnswerReply(thought, answer string) string {
	s, _ := Format(thought, FinalAnswer, map[string]any{AnswerKey: answer})
	return s
}

// FormatInstructions describes the expected reply format,
// it is returned to the LLM on parse errors.
const FormatInstructions = `You should ALWAYS use the following format:
Thought: <your reasoning>
Action:
{"action": "<tool name>", "action_input": {<parameters>}}<end_action>`
