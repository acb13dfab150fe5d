package openai

import (
	"time"

	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	baseAPIBaseEnvVarName  = "OPENAI_API_BASE"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

// ProviderType of the OpenAI compatible API
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "OPENAI"
	ProviderAzure      ProviderType = "AZURE"
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

const (
	DefaultAPIVersion        = "2024-10-21"
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultMaxRetries        = 2
	DefaultTimeout           = 5 * time.Minute
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	provider     ProviderType
	httpClient   option.HTTPClient
	maxRetries   int
	timeout      time.Duration
	// Azure only
	apiVersion string
}

// Option configures the client
type Option func(*options)

// WithToken sets the API key, OPENAI_API_KEY is used by default
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithModel sets the model, OPENAI_MODEL is used by default.
// For Azure the model is the deployment name.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithBaseURL overrides the endpoint,
// OPENAI_BASE_URL or OPENAI_API_BASE are used by default.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithOrganization sets the OpenAI-Organization header
func WithOrganization(organization string) Option {
	return func(o *options) {
		o.organization = organization
	}
}

// WithProvider selects the API flavor, ProviderOpenAI by default
func WithProvider(provider ProviderType) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithAPIVersion sets the Azure api-version query
func WithAPIVersion(apiVersion string) Option {
	return func(o *options) {
		o.apiVersion = apiVersion
	}
}

func WithHTTPClient(client option.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithMaxRetries sets the retries of the SDK, default is 2
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// WithTimeout sets the timeout of a single request
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}
