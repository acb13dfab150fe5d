package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/collector"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/effective-security/agentloop/pkg/metricskey"
	"github.com/effective-security/agentloop/pkg/prompts"
	"github.com/effective-security/agentloop/react"
	"github.com/effective-security/agentloop/store"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "agent")

const (
	DefaultName          = "assistant"
	DefaultMaxIterations = 5
	DefaultMaxTokens     = 1000

	// ExceededMessage is returned when the iteration budget is spent
	ExceededMessage = "Exceed number of iterations, try again later."
	// ParseErrorAction is the action name of the tool message
	// returned to the LLM when its reply can not be parsed.
	ParseErrorAction = "parse_error"
	// LLMCallIDPrefix is the prefix of the correlation ID of assistant messages
	LLMCallIDPrefix = "llm-call--"
)

// ErrUnknownAction is returned when the LLM asks for a tool that is not registered
var ErrUnknownAction = errors.New("unknown action")

// OutcomeKind is the terminal result of a run
type OutcomeKind string

const (
	OutcomeFinalAnswer       OutcomeKind = "final_answer"
	OutcomeIterationExceeded OutcomeKind = "iteration_exceeded"
)

// Input of the run
type Input struct {
	// Message is the new user message, if empty the run continues the conversation.
	Message string
	// CorrelationID is the ID of the inbound message.
	CorrelationID string
	// Language is the optional language to interact with the user.
	Language string
}

// LoopOutcome is the result of the run
type LoopOutcome struct {
	Kind OutcomeKind `json:"kind" yaml:"kind"`
	// Content is the assistant message stored as the last message of the run
	Content string `json:"content" yaml:"content"`
	// FinalAnswer is set when Kind is final_answer
	FinalAnswer string `json:"final_answer,omitempty" yaml:"final_answer,omitempty"`
	// Iterations is the number of LLM calls
	Iterations int `json:"iterations" yaml:"iterations"`
	// States is the ordered trace of the states entered
	States []State             `json:"states" yaml:"states"`
	Usage  chatmodel.Usage     `json:"usage" yaml:"usage"`
	Calls  []*collector.Result `json:"calls,omitempty" yaml:"calls,omitempty"`
}

// Message returns the text delivered to the user
func (o *LoopOutcome) Message() string {
	if o.Kind == OutcomeFinalAnswer {
		return o.FinalAnswer
	}
	return o.Content
}

// Agent runs the ReAct loop for a chat.
// It keeps no run state, and is safe for concurrent runs on different chats.
type Agent struct {
	llm       llms.Model
	registry  *tools.Registry
	store     store.ConversationStore
	sysprompt *prompts.SystemPrompt
	cfg       *Config
}

// New returns the agent
func New(llm llms.Model, registry *tools.Registry, store store.ConversationStore, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("agent: LLM is required")
	}
	if registry == nil {
		return nil, errors.New("agent: tools registry is required")
	}
	if store == nil {
		return nil, errors.New("agent: conversation store is required")
	}

	cfg := NewConfig(opts...)
	if cfg.MaxIterations < 1 {
		return nil, errors.Newf("agent: max iterations must be at least 1: %d", cfg.MaxIterations)
	}
	if cfg.MaxTokens < 1 {
		return nil, errors.Newf("agent: max tokens must be at least 1: %d", cfg.MaxTokens)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	sysprompt, err := prompts.NewSystemPrompt(cfg.SystemPrompt)
	if err != nil {
		return nil, err
	}

	return &Agent{
		llm:       llm,
		registry:  registry,
		store:     store,
		sysprompt: sysprompt,
		cfg:       cfg,
	}, nil
}

// Name returns the name of the agent
func (a *Agent) Name() string {
	return a.cfg.Name
}

// Config returns a copy of the agent config
func (a *Agent) Config() Config {
	return *a.cfg
}

// Run processes the input and runs the loop until the final answer,
// or the iteration budget is spent.
// Only infrastructure failures of the LLM or the store are returned as error.
func (a *Agent) Run(ctx context.Context, input *Input) (*LoopOutcome, error) {
	started := time.Now()
	defer metricskey.PerfAgentRun.MeasureSince(started, a.cfg.Name)

	if input == nil {
		input = &Input{}
	}

	cb := a.cfg.Callback
	cb.OnAgentStart(ctx, a.cfg.Name, input.Message)

	out, err := a.run(ctx, input)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, a.cfg.Name)
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", a.cfg.Name,
			"err", err.Error(),
		)
		cb.OnAgentError(ctx, a.cfg.Name, err)
		return nil, err
	}

	if out.Kind == OutcomeFinalAnswer {
		metricskey.StatsAgentRunsSucceeded.IncrCounter(1, a.cfg.Name)
	} else {
		metricskey.StatsAgentIterationsExceeded.IncrCounter(1, a.cfg.Name)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.cfg.Name,
		"status", "completed",
		"kind", out.Kind,
		"iterations", out.Iterations,
		"tool_calls", len(out.Calls),
		"elapsed", time.Since(started).String(),
	)

	cb.OnAgentEnd(ctx, a.cfg.Name, string(out.Kind), out.Content)
	return out, nil
}

func (a *Agent) run(ctx context.Context, input *Input) (*LoopOutcome, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := a.sysprompt.Render(a.registry)
	if err != nil {
		return nil, err
	}

	calls := collector.New(collector.WithClock(a.cfg.Clock))
	l := &loop{
		Agent:        a,
		systemPrompt: systemPrompt,
		calls:        calls,
		tc: tools.ToolContext{
			TenantID:  tenantID,
			ChatID:    chatID,
			AgentName: a.cfg.Name,
			Store:     a.store,
			Collector: calls,
			Clock:     a.cfg.Clock,
		},
	}

	if input.Message != "" {
		content, err := prompts.UserMessage(a.cfg.Clock(), input.Message, input.Language)
		if err != nil {
			return nil, err
		}
		if err = l.append(ctx, chatmodel.UserMessage(content, input.CorrelationID)); err != nil {
			return nil, err
		}
	}

	return l.run(ctx)
}

// loop keeps the state of a single run
type loop struct {
	*Agent

	systemPrompt string
	calls        *collector.Collector
	tc           tools.ToolContext
	out          LoopOutcome

	reply     *llms.ChatResponse
	llmCallID string
	decision  *react.Decision
	tool      *tools.Descriptor
	// recovery is the tool message returned to the LLM in ERROR_RECOVERY
	recovery *chatmodel.Message
}

func (l *loop) run(ctx context.Context) (*LoopOutcome, error) {
	var err error
	state := StateAwaitingLLM
	for {
		l.enter(ctx, state)

		switch state {
		case StateAwaitingLLM:
			if err = l.callLLM(ctx); err != nil {
				return nil, err
			}
			state = StateParsed

		case StateParsed:
			if state, err = l.parse(ctx); err != nil {
				return nil, err
			}

		case StateDispatchingTool:
			if err = l.dispatch(ctx); err != nil {
				return nil, err
			}
			state = l.next()

		case StateErrorRecovery:
			err = l.append(ctx, l.recovery)
			l.recovery = nil
			if err != nil {
				return nil, err
			}
			state = l.next()

		case StateTerminatedFinal:
			return l.finish(ctx, OutcomeFinalAnswer, l.decision.Content, l.decision.FinalAnswer, l.llmCallID)

		case StateTerminatedExceeded:
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", l.cfg.Name,
				"status", "iterations_exceeded",
				"iterations", l.out.Iterations,
			)
			return l.finish(ctx, OutcomeIterationExceeded, ExceededMessage, "", "")

		default:
			return nil, errors.Newf("agent: unexpected state: %s", state)
		}
	}
}

func (l *loop) enter(ctx context.Context, state State) {
	l.out.States = append(l.out.States, state)
	l.cfg.Callback.OnStateChange(ctx, l.cfg.Name, state.String())
}

// next returns the state after a step,
// the budget is checked before the next LLM call.
func (l *loop) next() State {
	if l.out.Iterations >= l.cfg.MaxIterations {
		return StateTerminatedExceeded
	}
	return StateAwaitingLLM
}

func (l *loop) append(ctx context.Context, msg *chatmodel.Message) error {
	msg.CreatedAt = l.cfg.Clock().UTC()
	if err := l.store.Append(ctx, msg); err != nil {
		return errors.WithMessagef(err, "agent: failed to append %s message", msg.Role)
	}
	return nil
}

func (l *loop) callLLM(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "agent: run canceled")
	}

	history, err := l.store.Messages(ctx)
	if err != nil {
		return errors.WithMessage(err, "agent: failed to read conversation")
	}

	messages := make([]*chatmodel.Message, 0, len(history)+1)
	messages = append(messages, chatmodel.SystemMessage(l.systemPrompt))
	messages = append(messages, history...)

	name := l.cfg.Name
	modelName := values.StringsCoalesce(l.cfg.Model, l.llm.GetName())
	bytesSent := llmutils.CountMessagesContentSize(messages)

	l.cfg.Callback.OnLLMCallStart(ctx, name, l.llm, messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), name, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), name, modelName)

	started := time.Now()
	resp, err := l.llm.Chat(ctx, &llms.ChatRequest{
		Model:       l.cfg.Model,
		Messages:    messages,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	})
	metricskey.PerfLLMCall.MeasureSince(started, name, modelName)
	l.out.Iterations++
	if err != nil {
		return errors.Wrapf(err, "agent: failed to get response from LLM")
	}

	l.reply = resp
	l.llmCallID = LLMCallIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	l.out.Usage = l.out.Usage.Add(resp.Usage)

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(len(resp.Text)), name, modelName)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.InputTokens), name, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.OutputTokens), name, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(resp.Usage.Total()), name, modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", name,
		"model", modelName,
		"iteration", l.out.Iterations,
		"messages", len(messages),
		"bytes_sent", bytesSent,
		"stop_reason", resp.StopReason,
		"elapsed", time.Since(started).String(),
	)

	l.cfg.Callback.OnLLMCallEnd(ctx, name, l.llm, resp)
	return nil
}

func (l *loop) parse(ctx context.Context) (State, error) {
	name := l.cfg.Name

	d, err := react.Parse(l.reply.Text)
	if err != nil {
		metricskey.StatsAgentParseErrors.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", name,
			"status", "failed_to_parse_llm_response",
			"err", err.Error(),
			"response", slices.StringUpto(l.reply.Text, 256),
		)
		l.cfg.Callback.OnParseError(ctx, name, l.reply.Text, err)

		l.recovery = chatmodel.ToolMessage(
			prompts.ToolMessage(ParseErrorAction, err.Error()+"\n"+react.FormatInstructions),
			l.llmCallID)
		return StateErrorRecovery, nil
	}

	l.decision = d
	l.cfg.Callback.OnDecision(ctx, name, d)

	if d.IsFinal() {
		return StateTerminatedFinal, nil
	}

	if err = l.append(ctx, chatmodel.AssistantMessage(d.Content, l.llmCallID)); err != nil {
		return "", err
	}

	tool, ok := l.registry.Get(d.Action)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, d.Action)
		err = unknownAction(d.Action, l.registry.Names())
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", name,
			"status", "tool_not_found",
			"tool", d.Action,
		)
		l.cfg.Callback.OnToolNotFound(ctx, name, d.Action)

		l.recovery = chatmodel.ToolMessage(prompts.ToolMessage(d.Action, err.Error()), l.llmCallID)
		return StateErrorRecovery, nil
	}

	l.tool = tool
	return StateDispatchingTool, nil
}

func unknownAction(action string, available []string) error {
	names := append(available, tools.FinalAnswerName)
	return errors.Mark(
		errors.Newf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s",
			action, strings.Join(names, ", ")),
		ErrUnknownAction)
}

func (l *loop) dispatch(ctx context.Context) error {
	name := l.cfg.Name
	tool := l.tool
	toolName := tool.Name()
	params := tools.Params(l.decision.Parameters)

	if prev, ok := l.calls.Seen(toolName, params); ok {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", name,
			"status", "repeated_tool_call",
			"tool", toolName,
			"previous_call_id", prev,
		)
	}

	tc := l.tc
	tc.CallID = collector.NewCallID()

	l.cfg.Callback.OnToolStart(ctx, tool, name, params)

	started := time.Now()
	res, err := tool.Invoke(ctx, &tc, params)
	elapsed := time.Since(started)
	metricskey.PerfToolCall.MeasureSince(started, toolName)

	var (
		kind collector.Kind
		text string
		raw  any
	)
	switch {
	case err == nil:
		kind = collector.KindSuccess
		text = res.Text
		raw = res.Raw
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)
		l.cfg.Callback.OnToolEnd(ctx, tool, name, params, text)
	case errors.Is(err, tools.ErrInvalidInput):
		kind = collector.KindValidationError
		text = err.Error()
		metricskey.StatsToolCallsInvalid.IncrCounter(1, toolName)
		l.cfg.Callback.OnToolError(ctx, tool, name, params, err)
	default:
		kind = collector.KindRuntimeError
		text = "Error: " + err.Error()
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		l.cfg.Callback.OnToolError(ctx, tool, name, params, err)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", name,
		"tool", toolName,
		"call_id", tc.CallID,
		"kind", kind,
		"elapsed", elapsed.String(),
	)

	l.calls.Record(toolName, params, raw, text, kind, elapsed, collector.WithCallID(tc.CallID))
	return l.append(ctx, chatmodel.ToolMessage(prompts.ToolMessage(toolName, text), tc.CallID))
}

func (l *loop) finish(ctx context.Context, kind OutcomeKind, content, finalAnswer, correlationID string) (*LoopOutcome, error) {
	out := &l.out
	out.Kind = kind
	out.Content = content
	out.FinalAnswer = finalAnswer
	out.Calls = l.calls.All()

	if l.cfg.Deliver != nil {
		id, err := l.cfg.Deliver(ctx, out)
		if err != nil {
			return nil, errors.WithMessage(err, "agent: failed to deliver")
		}
		correlationID = values.StringsCoalesce(id, correlationID)
	}

	if err := l.append(ctx, chatmodel.AssistantMessage(content, correlationID)); err != nil {
		return nil, err
	}
	return out, nil
}
