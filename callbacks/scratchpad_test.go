package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/mocks/mockllms"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/react"
	"github.com/effective-security/agentloop/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("tenant1", "chatid", nil)
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	return ctx, chatCtx
}

func noopTool(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
	return &tools.Response{}, nil
}

func TestScratchpad_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	TimeNowFn = func() time.Time { return now }
	defer func() { TimeNowFn = time.Now }()

	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()
	sp.StartRun(ctx)

	tool := tools.MustNew("send_email", "Sends an email", tools.Schema{}, noopTool)
	params := tools.Params{"to": "bob"}

	sp.OnAgentStart(ctx, "assistant", "send email")
	sp.OnStateChange(ctx, "assistant", "AWAITING_LLM")
	sp.OnLLMCallStart(ctx, "assistant", llm, []*chatmodel.Message{
		chatmodel.SystemMessage("sys"),
		chatmodel.UserMessage("send email", "1"),
	})
	sp.OnLLMCallEnd(ctx, "assistant", llm, &llms.ChatResponse{
		Text:  "reply",
		Usage: chatmodel.Usage{InputTokens: 100, OutputTokens: 20},
	})
	sp.OnParseError(ctx, "assistant", "bad", errors.New("missing marker"))
	sp.OnDecision(ctx, "assistant", &react.Decision{Action: "send_email", Thought: "t"})
	sp.OnToolStart(ctx, tool, "assistant", params)
	sp.OnToolEnd(ctx, tool, "assistant", params, "sent")
	sp.OnToolError(ctx, tool, "assistant", params, errors.New("boom"))
	sp.OnToolNotFound(ctx, "assistant", "nonexistent_tool")
	sp.OnAgentError(ctx, "assistant", errors.New("failed"))
	sp.OnAgentEnd(ctx, "assistant", "final_answer", "done")

	now = now.Add(3 * time.Second)
	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)

	assert.Equal(t, "chatid", stats.ChatID)
	assert.Equal(t, cctx.RunID(), stats.RunID)
	assert.Equal(t, 3*time.Second, stats.Duration)
	assert.EqualValues(t, 1, stats.AgentCalls)
	assert.EqualValues(t, 1, stats.AgentCallsSucceeded)
	assert.EqualValues(t, 1, stats.AgentCallsFailed)
	assert.EqualValues(t, 1, stats.LLMCalls)
	assert.EqualValues(t, 2, stats.TotalMessages)
	assert.EqualValues(t, len("reply"), stats.LLMBytesIn)
	assert.EqualValues(t, 100, stats.LLMInputTokens)
	assert.EqualValues(t, 20, stats.LLMOutputTokens)
	assert.EqualValues(t, 120, stats.LLMTotalTokens)
	assert.EqualValues(t, 1, stats.ParseErrors)
	assert.EqualValues(t, 1, stats.ToolsCalls)
	assert.EqualValues(t, 1, stats.ToolsCallsSucceeded)
	assert.EqualValues(t, 1, stats.ToolsCallsFailed)
	assert.EqualValues(t, 1, stats.ToolNotFound)

	out := string(buf)
	assert.True(t, strings.HasPrefix(out, "2024-03-05 10:00:00 chatid."+cctx.RunID()+" *** Run Started ***\n"), out)
	assert.Contains(t, out, "assistant State: AWAITING_LLM")
	assert.Contains(t, out, "assistant send_email Output: sent")
	assert.Contains(t, out, "Agent calls: 1, Failed: 1")
	assert.Contains(t, out, "Tool calls: 1, Failed: 1, Not Found: 1")
	assert.Contains(t, out, "*** Run Ended. Duration: 3s ***")

	_, ok := sp.runs["chatid"]
	assert.False(t, ok)

	s2, b2 := sp.EndRun(ctx)
	assert.Nil(t, s2)
	assert.Nil(t, b2)
}

func TestScratchpad_NoRun(t *testing.T) {
	sp := NewScratchpad(ModeDefault)

	// no chat context
	sp.StartRun(context.Background())
	assert.Empty(t, sp.runs)

	ctx, _ := newTestChatContext()
	tool := tools.MustNew("send_email", "Sends an email", tools.Schema{}, noopTool)

	// events without a started run are ignored
	sp.OnAgentStart(ctx, "assistant", "x")
	sp.OnAgentEnd(ctx, "assistant", "final_answer", "x")
	sp.OnAgentError(ctx, "assistant", errors.New("x"))
	sp.OnParseError(ctx, "assistant", "x", errors.New("x"))
	sp.OnDecision(ctx, "assistant", &react.Decision{})
	sp.OnToolStart(ctx, tool, "assistant", nil)
	sp.OnToolEnd(ctx, tool, "assistant", nil, "x")
	sp.OnToolError(ctx, tool, "assistant", nil, errors.New("x"))
	sp.OnToolNotFound(ctx, "assistant", "x")

	stats, buf := sp.EndRun(ctx)
	assert.Nil(t, stats)
	assert.Nil(t, buf)
}
