package anthropic

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is used when no token is configured
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// Option configures the client
type Option func(*config)

type config struct {
	token      string
	model      string
	maxRetries int
	timeout    time.Duration
	// request options passed to the SDK as is
	request []option.RequestOption
}

// WithToken sets the API key,
// if not set the ANTHROPIC_API_KEY environment variable is used.
func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

// WithModel sets the model used for the chat
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the API endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		if baseURL != "" {
			c.request = append(c.request, option.WithBaseURL(baseURL))
		}
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client option.HTTPClient) Option {
	return func(c *config) {
		if client != nil {
			c.request = append(c.request, option.WithHTTPClient(client))
		}
	}
}

// WithMaxRetries sets the number of retries of the SDK, default is 2
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithTimeout sets the timeout of a single request
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithAnthropicBetaHeader sets the anthropic-beta header
func WithAnthropicBetaHeader(value string) Option {
	return func(c *config) {
		c.request = append(c.request, option.WithHeader("anthropic-beta", value))
	}
}
