package openai

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var (
	ErrEmptyResponse = errors.New("openai: no response")
	ErrMissingToken  = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
)

// LLM is a client for the OpenAI compatible chat completions API,
// used for OpenAI, Azure OpenAI and Perplexity.
type LLM struct {
	Client *openai.Client
	opts   *options
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      values.StringsCoalesce(os.Getenv(baseURLEnvVarName), os.Getenv(baseAPIBaseEnvVarName)),
		organization: os.Getenv(organizationEnvVarName),
		provider:     ProviderOpenAI,
		httpClient:   http.DefaultClient,
		maxRetries:   DefaultMaxRetries,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.token == "" {
		return nil, ErrMissingToken
	}
	if o.model == "" {
		return nil, errors.New("openai: model is required")
	}

	switch o.provider {
	case ProviderOpenAI:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultBaseURL)
	case ProviderPerplexity:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultPerplexityBaseURL)
	case ProviderAzure:
		if o.baseURL == "" {
			return nil, errors.New("openai: base URL is required for Azure")
		}
		o.apiVersion = values.StringsCoalesce(o.apiVersion, DefaultAPIVersion)
	default:
		return nil, errors.Newf("openai: unsupported provider: %s", o.provider)
	}

	return &LLM{
		Client: newClient(o),
		opts:   o,
	}, nil
}

func newClient(o *options) *openai.Client {
	baseURL := strings.TrimRight(o.baseURL, "/")
	sdkOpts := []option.RequestOption{
		option.WithMaxRetries(o.maxRetries),
		option.WithRequestTimeout(o.timeout),
	}

	if o.provider == ProviderAzure {
		// /openai/deployments/{model}/chat/completions?api-version={api_version}
		sdkOpts = append(sdkOpts,
			option.WithBaseURL(baseURL+"/openai/deployments/"+o.model+"/"),
			option.WithQuery("api-version", o.apiVersion),
			option.WithHeader("api-key", o.token),
		)
	} else {
		sdkOpts = append(sdkOpts,
			option.WithAPIKey(o.token),
			option.WithBaseURL(baseURL+"/"),
		)
	}

	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	client := openai.NewClient(sdkOpts...)
	return &client
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.opts.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(o.opts.provider)
}

// Chat implements the Model interface.
func (o *LLM) Chat(ctx context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
	params, err := CompletionParams(o.opts.model, req)
	if err != nil {
		return nil, err
	}

	result, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	choice := result.Choices[0]
	return &llms.ChatResponse{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: chatmodel.Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}, nil
}

// CompletionParams converts the request to the chat completion parameters.
func CompletionParams(model string, req *llms.ChatRequest) (openai.ChatCompletionNewParams, error) {
	system, turns := llms.Turns(req.Messages)
	if len(turns) == 0 {
		return openai.ChatCompletionNewParams{}, errors.WithMessage(llms.ErrNoMessages, "openai")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, t := range turns {
		if t.Role == llms.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.ModelName(model)),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params, nil
}
