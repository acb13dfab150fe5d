package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/effective-security/agentloop/react"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=callback.go -destination=../mocks/mockcallbacks/callback_mock.gen.go -package mockcallbacks

// Callback is notified at every transition of the agent loop.
type Callback interface {
	tools.Callback

	OnAgentStart(ctx context.Context, agentName, input string)
	OnAgentEnd(ctx context.Context, agentName, kind, content string)
	OnAgentError(ctx context.Context, agentName string, err error)
	OnStateChange(ctx context.Context, agentName, state string)
	OnLLMCallStart(ctx context.Context, agentName string, llm llms.Model, payload []*chatmodel.Message)
	OnLLMCallEnd(ctx context.Context, agentName string, llm llms.Model, resp *llms.ChatResponse)
	OnParseError(ctx context.Context, agentName, response string, err error)
	OnDecision(ctx context.Context, agentName string, decision *react.Decision)
	OnToolNotFound(ctx context.Context, agentName, tool string)
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Callback = (*Noop)(nil)
	_ Callback = (*Printer)(nil)
	_ Callback = (*PackageLogger)(nil)
	_ Callback = (*Fanout)(nil)
	_ Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Callback
}

func NewFanout(callbacks ...Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAgentStart(ctx context.Context, agentName, input string) {
	for _, callback := range l.callbacks {
		callback.OnAgentStart(ctx, agentName, input)
	}
}

func (l *Fanout) OnAgentEnd(ctx context.Context, agentName, kind, content string) {
	for _, callback := range l.callbacks {
		callback.OnAgentEnd(ctx, agentName, kind, content)
	}
}

func (l *Fanout) OnAgentError(ctx context.Context, agentName string, err error) {
	for _, callback := range l.callbacks {
		callback.OnAgentError(ctx, agentName, err)
	}
}

func (l *Fanout) OnStateChange(ctx context.Context, agentName, state string) {
	for _, callback := range l.callbacks {
		callback.OnStateChange(ctx, agentName, state)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, agentName string, llm llms.Model, payload []*chatmodel.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, agentName, llm, payload)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, agentName string, llm llms.Model, resp *llms.ChatResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, agentName, llm, resp)
	}
}

func (l *Fanout) OnParseError(ctx context.Context, agentName, response string, err error) {
	for _, callback := range l.callbacks {
		callback.OnParseError(ctx, agentName, response, err)
	}
}

func (l *Fanout) OnDecision(ctx context.Context, agentName string, decision *react.Decision) {
	for _, callback := range l.callbacks {
		callback.OnDecision(ctx, agentName, decision)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, agentName, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, agentName, tool)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool *tools.Descriptor, agentName string, params tools.Params) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, agentName, params)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool *tools.Descriptor, agentName string, params tools.Params, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, agentName, params, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool *tools.Descriptor, agentName string, params tools.Params, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, agentName, params, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAgentStart(context.Context, string, string)                             {}
func (l *Noop) OnAgentEnd(context.Context, string, string, string)                       {}
func (l *Noop) OnAgentError(context.Context, string, error)                              {}
func (l *Noop) OnStateChange(context.Context, string, string)                            {}
func (l *Noop) OnLLMCallStart(context.Context, string, llms.Model, []*chatmodel.Message) {}
func (l *Noop) OnLLMCallEnd(context.Context, string, llms.Model, *llms.ChatResponse)     {}
func (l *Noop) OnParseError(context.Context, string, string, error)                      {}
func (l *Noop) OnDecision(context.Context, string, *react.Decision)                      {}
func (l *Noop) OnToolNotFound(context.Context, string, string)                           {}
func (l *Noop) OnToolStart(context.Context, *tools.Descriptor, string, tools.Params)     {}
func (l *Noop) OnToolEnd(context.Context, *tools.Descriptor, string, tools.Params, string) {
}
func (l *Noop) OnToolError(context.Context, *tools.Descriptor, string, tools.Params, error) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAgentStart(_ context.Context, agentName, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent Start: %s\n", agentName)
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnAgentEnd(_ context.Context, agentName, kind, content string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent End: %s: %s\n", agentName, kind)
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, content)
	}
}

func (l *Printer) OnAgentError(_ context.Context, agentName string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent Error: %s: %s\n", agentName, err.Error())
}

func (l *Printer) OnStateChange(_ context.Context, agentName, state string) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "State: %s: %s\n", agentName, state)
}

func (l *Printer) OnLLMCallStart(_ context.Context, agentName string, llm llms.Model, payload []*chatmodel.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", agentName, llm.GetName(), len(payload))
}

func (l *Printer) OnLLMCallEnd(_ context.Context, agentName string, llm llms.Model, resp *llms.ChatResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s: %s model, %d input tokens, %d output tokens\n",
		agentName, llm.GetName(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, resp.Text)
	}
}

func (l *Printer) OnParseError(_ context.Context, agentName, response string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Parse Error: %s: %s\n", agentName, err.Error())
	fmt.Fprintf(l.Out, "Response: %s\n", response)
}

func (l *Printer) OnDecision(_ context.Context, agentName string, decision *react.Decision) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Decision: %s: %s\n", agentName, decision.Action)
	if l.Mode == ModeVerbose && decision.Thought != "" {
		fmt.Fprintf(l.Out, "Thought: %s\n", decision.Thought)
	}
}

func (l *Printer) OnToolNotFound(_ context.Context, agentName, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s (%s)\n", tool, agentName)
}

func (l *Printer) OnToolStart(_ context.Context, tool *tools.Descriptor, agentName string, params tools.Params) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", tool.Name(), agentName)
	fmt.Fprintf(l.Out, "Input: %s\n", llmutils.ToJSON(params))
}

func (l *Printer) OnToolEnd(_ context.Context, tool *tools.Descriptor, agentName string, _ tools.Params, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", tool.Name(), agentName)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(_ context.Context, tool *tools.Descriptor, agentName string, _ tools.Params, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", tool.Name(), agentName, err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAgentStart(ctx context.Context, agentName, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_start",
		"agent", agentName,
		"input", slices.StringUpto(input, 256),
	)
}

func (l *PackageLogger) OnAgentEnd(ctx context.Context, agentName, kind, content string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_end",
		"agent", agentName,
		"kind", kind,
		"result", slices.StringUpto(content, 256),
	)
}

func (l *PackageLogger) OnAgentError(ctx context.Context, agentName string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "agent_error",
		"agent", agentName,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnStateChange(ctx context.Context, agentName, state string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "state",
		"agent", agentName,
		"state", state,
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, agentName string, llm llms.Model, payload []*chatmodel.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"agent", agentName,
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, agentName string, llm llms.Model, resp *llms.ChatResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"agent", agentName,
		"model", llm.GetName(),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
}

func (l *PackageLogger) OnParseError(ctx context.Context, agentName, response string, err error) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_parse_error",
		"agent", agentName,
		"err", err.Error(),
		"response", slices.StringUpto(response, 256),
	)
}

func (l *PackageLogger) OnDecision(ctx context.Context, agentName string, decision *react.Decision) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "decision",
		"agent", agentName,
		"action", decision.Action,
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, agentName, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"agent", agentName,
		"tool", tool,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool *tools.Descriptor, agentName string, params tools.Params) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"agent", agentName,
		"tool", tool.Name(),
		"input", llmutils.ToJSON(params),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool *tools.Descriptor, agentName string, _ tools.Params, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"agent", agentName,
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool *tools.Descriptor, agentName string, _ tools.Params, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"agent", agentName,
		"tool", tool.Name(),
		"err", err.Error(),
	)
}
