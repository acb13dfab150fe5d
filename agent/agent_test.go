package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/agent"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/collector"
	"github.com/effective-security/agentloop/mocks/mockcallbacks"
	"github.com/effective-security/agentloop/mocks/mockllms"
	"github.com/effective-security/agentloop/mocks/mockstore"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/react"
	"github.com/effective-security/agentloop/store"
	"github.com/effective-security/agentloop/tools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func testClock() time.Time {
	return testNow
}

func newTestContext() context.Context {
	chatCtx := chatmodel.NewChatContext("tenant1", chatmodel.NewChatID(), nil)
	return chatmodel.WithChatContext(context.Background(), chatCtx)
}

func newMockLLM(ctrl *gomock.Controller) *mockllms.MockModel {
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-4o").AnyTimes()
	llm.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	return llm
}

func reply(text string) *llms.ChatResponse {
	return &llms.ChatResponse{
		Text:       text,
		StopReason: "stop",
		Usage:      chatmodel.Usage{InputTokens: 100, OutputTokens: 10},
	}
}

func actionReply(t *testing.T, action string, input map[string]any) *llms.ChatResponse {
	s, err := react.Format("I need to call "+action, action, input)
	require.NoError(t, err)
	return reply(s)
}

type sentEmail struct {
	To      string
	Subject string
}

func newRegistry(sent *[]sentEmail) *tools.Registry {
	sendEmail := tools.MustNew("send_email", "Sends an email to the recipient",
		tools.Schema{Params: []tools.Param{
			{Name: "to", Type: tools.TypeString, Description: "Recipient email", Required: true},
			{Name: "subject", Type: tools.TypeString, Description: "Subject of the email", Required: true},
		}},
		func(_ context.Context, tc *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			if !strings.Contains(p.String("to"), "@") {
				return nil, tools.InvalidInputf("invalid email: %s", p.String("to"))
			}
			*sent = append(*sent, sentEmail{To: p.String("to"), Subject: p.String("subject")})
			return &tools.Response{
				Raw:  map[string]any{"call_id": tc.CallID},
				Text: "Email sent to " + p.String("to"),
			}, nil
		})

	fail := tools.MustNew("fail", "Always fails", tools.Schema{},
		func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
			return nil, errors.New("service unavailable")
		})

	boom := tools.MustNew("boom", "Always panics", tools.Schema{},
		func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
			panic("nil map")
		})

	return tools.NewRegistry().MustRegister(sendEmail, fail, boom)
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	reg := tools.NewRegistry()
	st := store.NewMemoryStore()

	_, err := agent.New(nil, reg, st)
	assert.EqualError(t, err, "agent: LLM is required")
	_, err = agent.New(llm, nil, st)
	assert.EqualError(t, err, "agent: tools registry is required")
	_, err = agent.New(llm, reg, nil)
	assert.EqualError(t, err, "agent: conversation store is required")

	_, err = agent.New(llm, reg, st, agent.WithMaxIterations(0))
	assert.EqualError(t, err, "agent: max iterations must be at least 1: 0")
	_, err = agent.New(llm, reg, st, agent.WithMaxTokens(-1))
	assert.EqualError(t, err, "agent: max tokens must be at least 1: -1")
	_, err = agent.New(llm, reg, st, agent.WithSystemPrompt("{% if %}"))
	assert.ErrorContains(t, err, "failed to parse system prompt")

	a, err := agent.New(llm, reg, st)
	require.NoError(t, err)
	cfg := a.Config()
	assert.Equal(t, agent.DefaultName, a.Name())
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.NotNil(t, cfg.Callback)

	a, err = agent.New(llm, reg, st,
		agent.WithName("calendar"),
		agent.WithModel("gpt-4o-mini"),
		agent.WithMaxIterations(10),
		agent.WithMaxTokens(2000),
		agent.WithTemperature(0.2),
		agent.WithCallback(nil),
		agent.WithClock(nil),
	)
	require.NoError(t, err)
	cfg = a.Config()
	assert.Equal(t, "calendar", a.Name())
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.NotNil(t, cfg.Callback)
	assert.NotNil(t, cfg.Clock)
}

func TestRun_FinalAnswer(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail
	reg := newRegistry(&sent)

	a, err := agent.New(llm, reg, st, agent.WithClock(testClock), agent.WithModel("gpt-4o-mini"))
	require.NoError(t, err)

	raw := "Thought: ok\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"done\"}}<end_action>"
	llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Equal(t, agent.DefaultMaxTokens, req.MaxTokens)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, chatmodel.RoleSystem, req.Messages[0].Role)
			assert.Contains(t, req.Messages[0].Content, "send_email, fail, boom, final_answer.")
			assert.Contains(t, req.Messages[0].Content, reg.Describe())
			assert.Equal(t, chatmodel.RoleUser, req.Messages[1].Role)
			return reply(raw + "\nObservation: ignored"), nil
		}).Times(1)

	ctx := newTestContext()
	out, err := a.Run(ctx, &agent.Input{Message: "hello", CorrelationID: "wamid.1", Language: "spanish"})
	require.NoError(t, err)

	assert.Equal(t, agent.OutcomeFinalAnswer, out.Kind)
	assert.Equal(t, "done", out.FinalAnswer)
	assert.Equal(t, "done", out.Message())
	assert.Equal(t, raw, out.Content)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, chatmodel.Usage{InputTokens: 100, OutputTokens: 10}, out.Usage)
	assert.Empty(t, out.Calls)
	assert.Empty(t, cmp.Diff([]agent.State{
		agent.StateAwaitingLLM,
		agent.StateParsed,
		agent.StateTerminatedFinal,
	}, out.States))

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chatmodel.RoleUser, msgs[0].Role)
	assert.Equal(t, "wamid.1", msgs[0].CorrelationID)
	assert.Equal(t, "Today's date is March 05, 2024, and the current time is 14:07:09.\nUser current message is:\nhello\nInteract with him in spanish.", msgs[0].Content)
	assert.Equal(t, testNow, msgs[0].CreatedAt)

	assert.Equal(t, chatmodel.RoleAssistant, msgs[1].Role)
	assert.Equal(t, raw, msgs[1].Content)
	assert.True(t, strings.HasPrefix(msgs[1].CorrelationID, agent.LLMCallIDPrefix))
	assert.Empty(t, sent)
}

func TestRun_ToolDispatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail
	reg := newRegistry(&sent)

	a, err := agent.New(llm, reg, st, agent.WithClock(testClock))
	require.NoError(t, err)

	to := gofakeit.Email()
	gomock.InOrder(
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "send_email", map[string]any{"to": to, "subject": "Meeting"}), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
				// system, user, assistant, tool
				require.Len(t, req.Messages, 4)
				last := req.Messages[3]
				assert.Equal(t, chatmodel.RoleTool, last.Role)
				assert.Equal(t, "Action executed: **send_email**\nResponse:\nEmail sent to "+to, last.Content)
				return reply(react.FinalAnswerReply("sent", "The email was sent.")), nil
			}),
	)

	ctx := newTestContext()
	out, err := a.Run(ctx, &agent.Input{Message: "send an email to " + to})
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, sentEmail{To: to, Subject: "Meeting"}, sent[0])

	assert.Equal(t, agent.OutcomeFinalAnswer, out.Kind)
	assert.Equal(t, "The email was sent.", out.FinalAnswer)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, int64(220), out.Usage.Total())
	assert.Empty(t, cmp.Diff([]agent.State{
		agent.StateAwaitingLLM,
		agent.StateParsed,
		agent.StateDispatchingTool,
		agent.StateAwaitingLLM,
		agent.StateParsed,
		agent.StateTerminatedFinal,
	}, out.States))

	require.Len(t, out.Calls, 1)
	call := out.Calls[0]
	assert.Equal(t, "send_email", call.ToolName)
	assert.Equal(t, collector.KindSuccess, call.Kind)
	assert.True(t, strings.HasPrefix(call.CallID, collector.CallIDPrefix))
	assert.Equal(t, map[string]any{"call_id": call.CallID}, call.RawResponse)
	assert.Equal(t, "Email sent to "+to, call.UserFacingResponse)
	assert.Equal(t, testNow, call.Timestamp)

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	roles := make([]chatmodel.Role, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	assert.Equal(t, []chatmodel.Role{
		chatmodel.RoleUser,
		chatmodel.RoleAssistant,
		chatmodel.RoleTool,
		chatmodel.RoleAssistant,
	}, roles)
	assert.True(t, strings.HasSuffix(msgs[1].Content, react.EndMarker))
	assert.Equal(t, call.CallID, msgs[2].CorrelationID)
}

func TestRun_UnknownTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail

	a, err := agent.New(llm, newRegistry(&sent), st)
	require.NoError(t, err)

	gomock.InOrder(
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "nonexistent_tool", nil), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(reply(react.FinalAnswerReply("", "sorry")), nil),
	)

	ctx := newTestContext()
	out, err := a.Run(ctx, &agent.Input{Message: "do something"})
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeFinalAnswer, out.Kind)
	assert.Equal(t, 2, out.Iterations)
	assert.Contains(t, out.States, agent.StateErrorRecovery)
	assert.NotContains(t, out.States, agent.StateDispatchingTool)
	assert.Empty(t, out.Calls)

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, chatmodel.RoleTool, msgs[2].Role)
	assert.Equal(t, "Action executed: **nonexistent_tool**\nResponse:\n"+
		"Tool `nonexistent_tool` not found. Please check the tool name and try again with exact match. "+
		"Available tools: send_email, fail, boom, final_answer", msgs[2].Content)
}

func TestRun_IterationExceeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail

	delivered := 0
	a, err := agent.New(llm, newRegistry(&sent), st,
		agent.WithMaxIterations(2),
		agent.WithDeliver(func(_ context.Context, out *agent.LoopOutcome) (string, error) {
			delivered++
			assert.Equal(t, agent.ExceededMessage, out.Message())
			return "wamid.out", nil
		}),
	)
	require.NoError(t, err)

	llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
		Return(actionReply(t, "send_email", map[string]any{"to": "bob@example.com", "subject": "hi"}), nil).
		Times(2)

	ctx := newTestContext()
	out, err := a.Run(ctx, &agent.Input{Message: "spam bob"})
	require.NoError(t, err)

	assert.Equal(t, agent.OutcomeIterationExceeded, out.Kind)
	assert.Equal(t, agent.ExceededMessage, out.Content)
	assert.Empty(t, out.FinalAnswer)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 1, delivered)
	assert.Len(t, sent, 2)
	assert.Len(t, out.Calls, 2)
	assert.Empty(t, cmp.Diff([]agent.State{
		agent.StateAwaitingLLM,
		agent.StateParsed,
		agent.StateDispatchingTool,
		agent.StateAwaitingLLM,
		agent.StateParsed,
		agent.StateDispatchingTool,
		agent.StateTerminatedExceeded,
	}, out.States))

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, chatmodel.RoleAssistant, last.Role)
	assert.Equal(t, agent.ExceededMessage, last.Content)
	assert.Equal(t, "wamid.out", last.CorrelationID)
}

func TestRun_ExactlyMaxIterations(t *testing.T) {
	replies := []string{
		"I don't know what to do",
		"Action:\n{\"action\": \"send_email\"}<end_action>",
		"Thought: hmm\nAction:\nnot a json<end_action>",
		"Thought: no marker\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"x\"}}",
	}

	for _, limit := range []int{1, 3, 5} {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		st := store.NewMemoryStore()
		var sent []sentEmail

		a, err := agent.New(llm, newRegistry(&sent), st, agent.WithMaxIterations(limit))
		require.NoError(t, err)

		count := 0
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, *llms.ChatRequest) (*llms.ChatResponse, error) {
				r := replies[count%len(replies)]
				count++
				return reply(r), nil
			}).Times(limit)

		ctx := newTestContext()
		out, err := a.Run(ctx, &agent.Input{Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, agent.OutcomeIterationExceeded, out.Kind)
		assert.Equal(t, limit, out.Iterations)
		assert.Equal(t, limit, count)

		msgs, err := st.Messages(ctx)
		require.NoError(t, err)
		// user + tool message per iteration + exceeded message
		require.Len(t, msgs, limit+2)
		for _, m := range msgs[1 : limit+1] {
			assert.Equal(t, chatmodel.RoleTool, m.Role)
			assert.True(t, strings.HasPrefix(m.Content, "Action executed: **parse_error**\nResponse:\nfailed to parse LLM response: "), m.Content)
			assert.Contains(t, m.Content, react.FormatInstructions)
		}
		ctrl.Finish()
	}
}

func TestRun_ToolFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail

	a, err := agent.New(llm, newRegistry(&sent), st)
	require.NoError(t, err)

	gomock.InOrder(
		// missing required parameter
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "send_email", map[string]any{"to": "bob@example.com"}), nil),
		// rejected by the handler
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "send_email", map[string]any{"to": "bob", "subject": "hi"}), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "fail", nil), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "boom", nil), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(reply(react.FinalAnswerReply("", "could not send")), nil),
	)

	ctx := newTestContext()
	out, err := a.Run(ctx, &agent.Input{Message: "send email"})
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeFinalAnswer, out.Kind)
	assert.Equal(t, 5, out.Iterations)
	assert.Empty(t, sent)

	require.Len(t, out.Calls, 4)
	kinds := []collector.Kind{
		collector.KindValidationError,
		collector.KindValidationError,
		collector.KindRuntimeError,
		collector.KindRuntimeError,
	}
	for i, k := range kinds {
		assert.Equal(t, k, out.Calls[i].Kind, "call %d", i)
	}
	assert.Contains(t, out.Calls[0].UserFacingResponse, `missing required parameter "subject"`)
	assert.Contains(t, out.Calls[1].UserFacingResponse, "invalid email: bob")
	assert.Equal(t, "Error: service unavailable", out.Calls[2].UserFacingResponse)
	assert.Equal(t, "Error: tool boom panicked: nil map", out.Calls[3].UserFacingResponse)

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	// user, 4 x (assistant, tool), final
	require.Len(t, msgs, 10)
	assert.Equal(t, "Action executed: **fail**\nResponse:\nError: service unavailable", msgs[6].Content)
}

func TestRun_ContinueConversation(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail

	a, err := agent.New(llm, newRegistry(&sent), st)
	require.NoError(t, err)

	ctx := newTestContext()
	require.NoError(t, st.Append(ctx, chatmodel.UserMessage("hi", "1")))

	llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "hi", req.Messages[1].Content)
			return reply(react.FinalAnswerReply("", "hello")), nil
		})

	out, err := a.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.FinalAnswer)
}

func TestRun_Errors(t *testing.T) {
	var sent []sentEmail

	t.Run("no chat context", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, err := agent.New(newMockLLM(ctrl), newRegistry(&sent), store.NewMemoryStore())
		require.NoError(t, err)

		_, err = a.Run(context.Background(), &agent.Input{Message: "hi"})
		assert.True(t, errors.Is(err, chatmodel.ErrInvalidChatContext))
	})

	t.Run("llm", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		a, err := agent.New(llm, newRegistry(&sent), store.NewMemoryStore())
		require.NoError(t, err)

		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, llms.ErrEmptyResponse)
		_, err = a.Run(newTestContext(), &agent.Input{Message: "hi"})
		assert.True(t, errors.Is(err, llms.ErrEmptyResponse))
		assert.ErrorContains(t, err, "agent: failed to get response from LLM")
	})

	t.Run("canceled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		a, err := agent.New(llm, newRegistry(&sent), store.NewMemoryStore())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(newTestContext())
		cancel()
		_, err = a.Run(ctx, &agent.Input{Message: "hi"})
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("canceled in tool", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		ctx, cancel := context.WithCancel(newTestContext())

		stop := tools.MustNew("stop", "Cancels the run", tools.Schema{},
			func(context.Context, *tools.ToolContext, tools.Params) (*tools.Response, error) {
				cancel()
				return &tools.Response{Text: "stopped"}, nil
			})
		a, err := agent.New(llm, tools.NewRegistry().MustRegister(stop), store.NewMemoryStore())
		require.NoError(t, err)

		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(actionReply(t, "stop", nil), nil).Times(1)
		_, err = a.Run(ctx, &agent.Input{Message: "hi"})
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		st := mockstore.NewMockConversationStore(ctrl)
		a, err := agent.New(llm, newRegistry(&sent), st)
		require.NoError(t, err)

		st.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
		_, err = a.Run(newTestContext(), &agent.Input{Message: "hi"})
		assert.EqualError(t, err, "agent: failed to append user message: connection refused")

		st.EXPECT().Messages(gomock.Any()).Return(nil, errors.New("connection refused"))
		_, err = a.Run(newTestContext(), nil)
		assert.EqualError(t, err, "agent: failed to read conversation: connection refused")
	})

	t.Run("deliver", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		llm := newMockLLM(ctrl)
		st := store.NewMemoryStore()
		a, err := agent.New(llm, newRegistry(&sent), st,
			agent.WithDeliver(func(context.Context, *agent.LoopOutcome) (string, error) {
				return "", errors.New("whatsapp is down")
			}))
		require.NoError(t, err)

		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply(react.FinalAnswerReply("", "hello")), nil)
		ctx := newTestContext()
		_, err = a.Run(ctx, &agent.Input{Message: "hi"})
		assert.EqualError(t, err, "agent: failed to deliver: whatsapp is down")

		msgs, err := st.Messages(ctx)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})
}

func TestRun_Deliver(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	st := store.NewMemoryStore()
	var sent []sentEmail

	var delivered string
	a, err := agent.New(llm, newRegistry(&sent), st,
		agent.WithDeliver(func(_ context.Context, out *agent.LoopOutcome) (string, error) {
			delivered = out.Message()
			return "wamid.2", nil
		}))
	require.NoError(t, err)

	llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply(react.FinalAnswerReply("", "hello")), nil)

	ctx := newTestContext()
	_, err = a.Run(ctx, &agent.Input{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", delivered)

	msgs, err := st.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "wamid.2", msgs[1].CorrelationID)
}

func TestRun_Callbacks(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	cb := mockcallbacks.NewMockCallback(ctrl)
	var sent []sentEmail

	a, err := agent.New(llm, newRegistry(&sent), store.NewMemoryStore(),
		agent.WithName("mailer"),
		agent.WithCallback(cb))
	require.NoError(t, err)

	gomock.InOrder(
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply("garbage"), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(actionReply(t, "unknown", nil), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).
			Return(actionReply(t, "send_email", map[string]any{"to": "bob@example.com", "subject": "hi"}), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(actionReply(t, "fail", nil), nil),
		llm.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply(react.FinalAnswerReply("", "done")), nil),
	)

	cb.EXPECT().OnAgentStart(gomock.Any(), "mailer", "send").Times(1)
	cb.EXPECT().OnStateChange(gomock.Any(), "mailer", gomock.Any()).MinTimes(5)
	cb.EXPECT().OnLLMCallStart(gomock.Any(), "mailer", llm, gomock.Any()).Times(5)
	cb.EXPECT().OnLLMCallEnd(gomock.Any(), "mailer", llm, gomock.Any()).Times(5)
	cb.EXPECT().OnParseError(gomock.Any(), "mailer", "garbage", gomock.Any()).Times(1)
	cb.EXPECT().OnDecision(gomock.Any(), "mailer", gomock.Any()).Times(4)
	cb.EXPECT().OnToolNotFound(gomock.Any(), "mailer", "unknown").Times(1)
	cb.EXPECT().OnToolStart(gomock.Any(), gomock.Any(), "mailer", gomock.Any()).Times(2)
	cb.EXPECT().OnToolEnd(gomock.Any(), gomock.Any(), "mailer", gomock.Any(), "Email sent to bob@example.com").Times(1)
	cb.EXPECT().OnToolError(gomock.Any(), gomock.Any(), "mailer", gomock.Any(), gomock.Any()).Times(1)
	cb.EXPECT().OnAgentEnd(gomock.Any(), "mailer", "final_answer", gomock.Any()).Times(1)

	out, err := a.Run(newTestContext(), &agent.Input{Message: "send"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.FinalAnswer)
}
