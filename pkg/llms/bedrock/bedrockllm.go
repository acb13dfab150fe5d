package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/x/values"
)

const (
	DefaultModel     = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultMaxTokens = 2048

	// AnthropicLatestVersion is the Messages API version on Bedrock
	AnthropicLatestVersion = "bedrock-2023-05-31"
)

var ErrEmptyResponse = errors.New("bedrock: no response")

// InvokeModelAPI is the subset of the Bedrock runtime client used by the LLM.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// LLM is a Bedrock LLM implementation.
// Only the Anthropic models are supported.
type LLM struct {
	modelID string
	client  InvokeModelAPI
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	o := &options{
		modelID: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if provider := getProvider(o.modelID); provider != "anthropic" {
		return nil, errors.Newf("bedrock: unsupported provider: %q", provider)
	}

	if o.client == nil {
		var cfgOpts []func(*config.LoadOptions) error
		if o.region != "" {
			cfgOpts = append(cfgOpts, config.WithRegion(o.region))
		}
		if o.accessKey != "" {
			cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, "")))
		}
		cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load config")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		client:  o.client,
		modelID: o.modelID,
	}, nil
}

// getProvider handles Inference Profiles (e.g., "us.anthropic.claude-3-5-sonnet-20241022-v2:0")
// and direct model IDs (e.g., "anthropic.claude-3-sonnet-20240229-v1:0")
func getProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 && len(parts[0]) == 2 && strings.ToLower(parts[0]) == parts[0] {
		return parts[1]
	}
	return parts[0]
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

type inputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type anthropicInput struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []*inputMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
}

type anthropicOutput struct {
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []inputContent `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Chat implements the Model interface.
func (l *LLM) Chat(ctx context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
	system, turns := llms.Turns(req.Messages)
	if len(turns) == 0 {
		return nil, errors.WithMessage(llms.ErrNoMessages, "bedrock")
	}

	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        values.NumbersCoalesce(req.MaxTokens, DefaultMaxTokens),
		System:           system,
		Temperature:      req.Temperature,
	}
	for _, t := range turns {
		input.Messages = append(input.Messages, &inputMessage{
			Role:    string(t.Role),
			Content: []inputContent{{Type: "text", Text: t.Content}},
		})
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := l.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelName(l.modelID)),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to decode response")
	}

	var text strings.Builder
	for _, c := range output.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &llms.ChatResponse{
		Text:       text.String(),
		StopReason: output.StopReason,
		Usage: chatmodel.Usage{
			InputTokens:  output.Usage.InputTokens,
			OutputTokens: output.Usage.OutputTokens,
		},
	}, nil
}
