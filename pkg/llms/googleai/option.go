package googleai

import (
	"net/http"
	"os"

	"cloud.google.com/go/auth"
	"github.com/effective-security/x/values"
	"google.golang.org/genai"
)

// APIKeyEnvVarNames are checked in order when no key or credentials are configured
var APIKeyEnvVarNames = []string{"GOOGLEAI_API_KEY", "GOOGLE_API_KEY"}

const (
	DefaultModel       = "gemini-2.5-pro"
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.5
)

type options struct {
	model       string
	maxTokens   int
	temperature float64
	harm        genai.HarmBlockThreshold

	apiKey      string
	baseURL     string
	credentials *auth.Credentials
	httpClient  *http.Client

	// Vertex AI backend
	project  string
	location string
}

func newOptions(opts ...Option) *options {
	o := &options{
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		harm:        genai.HarmBlockThresholdBlockOnlyHigh,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.credentials == nil && o.apiKey == "" {
		for _, env := range APIKeyEnvVarNames {
			o.apiKey = values.StringsCoalesce(o.apiKey, os.Getenv(env))
		}
	}
	return o
}

// Option configures the client
type Option func(*options)

// WithAPIKey sets the Gemini API key
func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// WithCredentials authenticates with service account or user credentials
func WithCredentials(credentials *auth.Credentials) Option {
	return func(o *options) {
		if credentials != nil {
			o.credentials = credentials
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// WithBaseURL overrides the API endpoint
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithVertex selects the Vertex AI backend in the GCP project and region
func WithVertex(project, location string) Option {
	return func(o *options) {
		o.project = project
		o.location = location
	}
}

// WithModel sets the model used when the request does not name one
func WithModel(model string) Option {
	return func(o *options) {
		o.model = values.StringsCoalesce(model, o.model)
	}
}

// WithMaxTokens sets the output limit used when the request does not set one
func WithMaxTokens(maxTokens int) Option {
	return func(o *options) {
		o.maxTokens = maxTokens
	}
}

// WithTemperature sets the temperature used when the request does not set one
func WithTemperature(temperature float64) Option {
	return func(o *options) {
		o.temperature = temperature
	}
}

// WithHarmThreshold sets the safety threshold of all harm categories
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(o *options) {
		o.harm = ht
	}
}
