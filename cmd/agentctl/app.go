package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/agent"
	"github.com/effective-security/agentloop/callbacks"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/collector"
	"github.com/effective-security/agentloop/encoding"
	"github.com/effective-security/agentloop/pkg/llmfactory"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/store"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/agentloop/tools/calendar"
	"github.com/effective-security/agentloop/tools/email"
	"github.com/effective-security/agentloop/tools/websearch"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "agentctl")

// App holds the agent and its collaborators
type App struct {
	cfg       *Config
	agent     *agent.Agent
	store     store.Manager
	registry  *tools.Registry
	mailer    *email.MemoryMailer
	scheduler *email.MemoryScheduler
	out       io.Writer
	audit     encoding.Encoder
	clock     func() time.Time
}

// AppOption configures the App
type AppOption func(*App)

// WithOutput sets the writer for the agent replies
func WithOutput(w io.Writer) AppOption {
	return func(a *App) {
		a.out = w
	}
}

// WithAudit enables the export of the tool calls after each turn
func WithAudit(enc encoding.Encoder) AppOption {
	return func(a *App) {
		a.audit = enc
	}
}

// WithAppClock sets the clock of the agent and the tools
func WithAppClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.clock = now
		}
	}
}

// NewModel returns the LLM for the agent from the providers config
func NewModel(cfg *Config) (llms.Model, error) {
	if cfg.LLM == "" {
		return nil, errors.New("LLM config is required")
	}
	f, err := llmfactory.Load(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if len(cfg.Agent.Models) > 0 {
		return f.ModelByName(cfg.Agent.Models...)
	}
	return f.AgentModel(cfg.Agent.Name)
}

// NewStore returns the conversation store
func NewStore(cfg *StoreConfig) store.Manager {
	if cfg.Type == storeRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var opts []store.RedisOption
		if cfg.Redis.MessageLimit > 0 {
			opts = append(opts, store.WithMessageLimit(cfg.Redis.MessageLimit))
		}
		return store.NewRedisStore(client, cfg.Redis.Prefix, opts...)
	}
	return store.NewMemoryStore()
}

// NewRegistry returns the registry with the enabled tools
func NewRegistry(cfg *ToolsConfig, mailer email.Mailer, scheduler email.Scheduler) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if cfg.Calendar {
		if err := registry.Register(calendar.Tools(calendar.NewMemoryCalendar())...); err != nil {
			return nil, err
		}
	}
	if cfg.Email {
		if err := registry.Register(email.Tool(mailer, scheduler)); err != nil {
			return nil, err
		}
	}
	if cfg.WebSearch.Enabled {
		ws, err := websearch.Tool(
			websearch.WithAPIKey(cfg.WebSearch.APIKey),
			websearch.WithBaseURL(cfg.WebSearch.BaseURL),
			websearch.WithSearchDepth(cfg.WebSearch.SearchDepth),
		)
		if err != nil {
			return nil, err
		}
		if err = registry.Register(ws); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewApp returns the App
func NewApp(cfg *Config, model llms.Model, cb callbacks.Callback, opts ...AppOption) (*App, error) {
	a := &App{
		cfg:       cfg,
		store:     NewStore(&cfg.Store),
		mailer:    email.NewMemoryMailer(),
		scheduler: email.NewMemoryScheduler(),
		out:       os.Stdout,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	a.registry, err = NewRegistry(&cfg.Tools, a.mailer, a.scheduler)
	if err != nil {
		return nil, err
	}

	agentOpts := []agent.Option{
		agent.WithName(cfg.Agent.Name),
		agent.WithCallback(cb),
		agent.WithClock(a.clock),
		agent.WithDeliver(a.deliver),
	}
	if cfg.Agent.MaxIterations != 0 {
		agentOpts = append(agentOpts, agent.WithMaxIterations(cfg.Agent.MaxIterations))
	}
	if cfg.Agent.MaxTokens != 0 {
		agentOpts = append(agentOpts, agent.WithMaxTokens(cfg.Agent.MaxTokens))
	}
	if cfg.Agent.Temperature != 0 {
		agentOpts = append(agentOpts, agent.WithTemperature(cfg.Agent.Temperature))
	}
	if cfg.Agent.SystemPrompt != "" {
		tmpl, err := os.ReadFile(cfg.Agent.SystemPrompt)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to read system prompt")
		}
		agentOpts = append(agentOpts, agent.WithSystemPrompt(string(tmpl)))
	}

	a.agent, err = agent.New(model, a.registry, a.store, agentOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ChatContext returns the context of the chat,
// a new chat is started if chatID is empty.
func (a *App) ChatContext(ctx context.Context, chatID string) context.Context {
	if chatID == "" {
		chatID = chatmodel.NewChatID()
	}
	return chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(a.cfg.TenantID, chatID, nil))
}

// Turn runs the agent for one user message
func (a *App) Turn(ctx context.Context, message string) (*agent.LoopOutcome, error) {
	out, err := a.agent.Run(ctx, &agent.Input{
		Message:  message,
		Language: a.cfg.Agent.Language,
	})
	if err != nil {
		return nil, err
	}

	n, err := a.scheduler.RunDue(ctx, a.clock())
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "scheduler", "err", err.Error())
	} else if n > 0 {
		logger.ContextKV(ctx, xlog.INFO, "status", "sent_scheduled", "count", n)
	}

	if a.audit != nil && len(out.Calls) > 0 {
		bs, err := a.audit.Marshal(&collector.AuditLog{Calls: out.Calls})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode audit log as %s", a.audit.Format())
		}
		fmt.Fprintf(a.out, "%s\n", bs)
	}
	return out, nil
}

func (a *App) deliver(_ context.Context, out *agent.LoopOutcome) (string, error) {
	_, err := fmt.Fprintf(a.out, "%s> %s\n", a.cfg.Agent.Name, out.Message())
	return "", errors.WithStack(err)
}
