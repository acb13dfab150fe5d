package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/agentloop/callbacks"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/mocks/mockcallbacks"
	"github.com/effective-security/agentloop/mocks/mockllms"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/react"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func noop(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
	return &tools.Response{}, nil
}

var testTool = tools.MustNew("send_email", "Sends an email", tools.Schema{}, noop)

func emit(ctx context.Context, cb callbacks.Callback, llm llms.Model) {
	params := tools.Params{"to": "bob@example.com"}
	payload := []*chatmodel.Message{chatmodel.UserMessage("hi", "1")}

	cb.OnAgentStart(ctx, "assistant", "test input")
	cb.OnStateChange(ctx, "assistant", "AWAITING_LLM")
	cb.OnLLMCallStart(ctx, "assistant", llm, payload)
	cb.OnLLMCallEnd(ctx, "assistant", llm, &llms.ChatResponse{
		Text:  "test reply",
		Usage: chatmodel.Usage{InputTokens: 10, OutputTokens: 5},
	})
	cb.OnParseError(ctx, "assistant", "bad reply", errors.New("missing marker"))
	cb.OnDecision(ctx, "assistant", &react.Decision{Thought: "thinking", Action: "send_email"})
	cb.OnToolNotFound(ctx, "assistant", "nonexistent_tool")
	cb.OnToolStart(ctx, testTool, "assistant", params)
	cb.OnToolEnd(ctx, testTool, "assistant", params, "test output")
	cb.OnToolError(ctx, testTool, "assistant", params, errors.New("test error"))
	cb.OnAgentError(ctx, "assistant", errors.New("agent error"))
	cb.OnAgentEnd(ctx, "assistant", "final_answer", "test answer")
}

func TestPrinter(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	var buf bytes.Buffer
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeVerbose), llm)

	res := buf.String()
	assert.Contains(t, res, "Agent Start: assistant\nInput: test input\n")
	assert.Contains(t, res, "State: assistant: AWAITING_LLM\n")
	assert.Contains(t, res, "LLM Call: assistant: gpt-4o model, 1 messages\n")
	assert.Contains(t, res, "LLM Call End: assistant: gpt-4o model, 10 input tokens, 5 output tokens\ntest reply\n")
	assert.Contains(t, res, "LLM Parse Error: assistant: missing marker\nResponse: bad reply\n")
	assert.Contains(t, res, "Decision: assistant: send_email\nThought: thinking\n")
	assert.Contains(t, res, "Tool Not Found: nonexistent_tool (assistant)\n")
	assert.Contains(t, res, "Tool Start: send_email (assistant)\nInput: {\"to\":\"bob@example.com\"}\n")
	assert.Contains(t, res, "Tool End: send_email (assistant)\nOutput: test output\n")
	assert.Contains(t, res, "Tool Error: send_email (assistant): test error\n")
	assert.Contains(t, res, "Agent Error: assistant: agent error\n")
	assert.Contains(t, res, "Agent End: assistant: final_answer\ntest answer\n")

	buf.Reset()
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeDefault), llm)
	res = buf.String()
	assert.NotContains(t, res, "State:")
	assert.NotContains(t, res, "Output: test output")
	assert.NotContains(t, res, "Thought: thinking")
}

func TestFanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	m1 := mockcallbacks.NewMockCallback(ctrl)
	m2 := mockcallbacks.NewMockCallback(ctrl)
	for _, m := range []*mockcallbacks.MockCallback{m1, m2} {
		m.EXPECT().OnAgentStart(gomock.Any(), "assistant", "test input").Times(1)
		m.EXPECT().OnStateChange(gomock.Any(), "assistant", "AWAITING_LLM").Times(1)
		m.EXPECT().OnLLMCallStart(gomock.Any(), "assistant", llm, gomock.Len(1)).Times(1)
		m.EXPECT().OnLLMCallEnd(gomock.Any(), "assistant", llm, gomock.Any()).Times(1)
		m.EXPECT().OnParseError(gomock.Any(), "assistant", "bad reply", gomock.Any()).Times(1)
		m.EXPECT().OnDecision(gomock.Any(), "assistant", gomock.Any()).Times(1)
		m.EXPECT().OnToolNotFound(gomock.Any(), "assistant", "nonexistent_tool").Times(1)
		m.EXPECT().OnToolStart(gomock.Any(), testTool, "assistant", gomock.Any()).Times(1)
		m.EXPECT().OnToolEnd(gomock.Any(), testTool, "assistant", gomock.Any(), "test output").Times(1)
		m.EXPECT().OnToolError(gomock.Any(), testTool, "assistant", gomock.Any(), gomock.Any()).Times(1)
		m.EXPECT().OnAgentError(gomock.Any(), "assistant", gomock.Any()).Times(1)
		m.EXPECT().OnAgentEnd(gomock.Any(), "assistant", "final_answer", "test answer").Times(1)
	}

	f := callbacks.NewFanout(m1)
	f.Add(m2)
	emit(context.Background(), f, llm)
}

func TestNoopAndLogger(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	emit(context.Background(), callbacks.NewNoop(), llm)

	logger := xlog.NewPackageLogger("github.com/effective-security/agentloop", "callbacks_test")
	emit(context.Background(), callbacks.NewPackageLogger(logger), llm)
}
