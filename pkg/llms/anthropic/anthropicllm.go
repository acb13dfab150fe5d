package anthropic

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse = errors.New("anthropic: no response")
	ErrMissingToken  = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
)

const (
	DefaultMaxTokens  = 4096
	DefaultMaxRetries = 2
	DefaultTimeout    = 5 * time.Minute
)

// LLM is the Anthropic Messages API client
type LLM struct {
	Client *anthropic.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns the client,
// if the token is not provided the ANTHROPIC_API_KEY environment variable is used.
func New(opts ...Option) (*LLM, error) {
	cfg := &config{
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	token := values.StringsCoalesce(cfg.token, os.Getenv(TokenEnvVarName))
	if token == "" {
		return nil, ErrMissingToken
	}
	if cfg.model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	request := append([]option.RequestOption{
		option.WithAPIKey(token),
		option.WithMaxRetries(cfg.maxRetries),
		option.WithRequestTimeout(cfg.timeout),
	}, cfg.request...)

	client := anthropic.NewClient(request...)
	return &LLM{
		Client: &client,
		model:  cfg.model,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// Chat implements the Model interface.
func (o *LLM) Chat(ctx context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
	params, err := MessageParams(o.model, req)
	if err != nil {
		return nil, err
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}

	var text strings.Builder
	for _, block := range result.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &llms.ChatResponse{
		Text:       text.String(),
		StopReason: string(result.StopReason),
		Usage: chatmodel.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
	}, nil
}

// MessageParams converts the request to the Messages API parameters.
func MessageParams(model string, req *llms.ChatRequest) (anthropic.MessageNewParams, error) {
	system, turns := llms.Turns(req.Messages)
	if len(turns) == 0 {
		return anthropic.MessageNewParams{}, errors.WithMessage(llms.ErrNoMessages, "anthropic")
	}

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == llms.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelName(model)),
		Messages:  msgs,
		MaxTokens: values.NumbersCoalesce(int64(req.MaxTokens), DefaultMaxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params, nil
}
