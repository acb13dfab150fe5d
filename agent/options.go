package agent

import (
	"context"
	"time"

	"github.com/effective-security/agentloop/callbacks"
)

// Option is a function that can be used to modify the Agent Config.
type Option func(*Config)

// DeliverFunc sends the outcome to the user,
// the returned ID becomes the correlation ID of the stored assistant message.
type DeliverFunc func(ctx context.Context, outcome *LoopOutcome) (string, error)

type Config struct {
	// Name of the agent, used in logs, metrics and callbacks.
	Name string

	// Model overrides the default model of the LLM.
	Model string

	// MaxIterations is the number of LLM calls allowed in a single run.
	MaxIterations int

	// MaxTokens is the maximum number of tokens to generate in an LLM call.
	MaxTokens int

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature float64

	// SystemPrompt is the Jinja template of the system prompt,
	// empty uses prompts.DefaultSystemPrompt.
	SystemPrompt string

	Callback callbacks.Callback
	Clock    func() time.Time
	Deliver  DeliverFunc
}

// NewConfig returns the config with defaults and applied options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:          DefaultName,
		MaxIterations: DefaultMaxIterations,
		MaxTokens:     DefaultMaxTokens,
		Callback:      callbacks.NewNoop(),
		Clock:         time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName sets the name of the agent.
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithModel is an option that allows to specify the model name.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
	}
}

// WithMaxIterations sets the iteration budget, must be at least 1.
func WithMaxIterations(n int) Option {
	return func(o *Config) {
		o.MaxIterations = n
	}
}

// WithMaxTokens is an option that allows to specify the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature is an option that allows to specify the temperature for sampling.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
	}
}

// WithCallback sets the callback, nil disables callbacks.
func WithCallback(callback callbacks.Callback) Option {
	return func(o *Config) {
		if callback == nil {
			callback = callbacks.NewNoop()
		}
		o.Callback = callback
	}
}

// WithSystemPrompt overrides the system prompt template.
func WithSystemPrompt(template string) Option {
	return func(o *Config) {
		o.SystemPrompt = template
	}
}

// WithClock sets the clock used for the user message mask and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Config) {
		if now != nil {
			o.Clock = now
		}
	}
}

// WithDeliver sets the function called when the run terminates.
func WithDeliver(deliver DeliverFunc) Option {
	return func(o *Config) {
		o.Deliver = deliver
	}
}
