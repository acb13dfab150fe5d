// Package websearch provides the web_search tool backed by the Tavily API.
package websearch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "tools/websearch")

const (
	// ToolName is the name of the tool
	ToolName = "web_search"
	// APIKeyEnv is the environment variable used when no API key is configured
	APIKeyEnv = "TAVILY_API_KEY"
)

// Result is the search result returned to the agent
type Result struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// String returns the result in a form suited for the LLM
func (r *Result) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}
	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}
	if buf.Len() == 0 {
		return "No results found."
	}
	return buf.String()
}

// Option configures the search client
type Option func(*options)

type options struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	searchDepth string
}

// WithAPIKey sets the Tavily API key, if not set the APIKeyEnv is used
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL overrides the Tavily endpoint
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithSearchDepth sets the search depth: basic or advanced
func WithSearchDepth(depth string) Option {
	return func(o *options) {
		o.searchDepth = depth
	}
}

// Tool returns the web_search tool,
// or an error if the API key is not provided.
func Tool(opts ...Option) (*tools.Descriptor, error) {
	o := &options{
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.apiKey = values.StringsCoalesce(o.apiKey, os.Getenv(APIKeyEnv))
	if o.apiKey == "" {
		return nil, errors.Errorf("%s is not set", APIKeyEnv)
	}
	o.searchDepth = values.StringsCoalesce(o.searchDepth, "basic")

	return tools.New(ToolName,
		"A tool that provides a web search functionality. "+
			"Use it to find current information that is not known to you.",
		tools.Schema{Params: []tools.Param{
			{Name: "query", Type: tools.TypeString, Required: true, Description: "The query to search web."},
		}},
		func(ctx context.Context, _ *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			query := strings.TrimSpace(p.String("query"))
			if query == "" {
				return nil, tools.InvalidInputf("The 'query' field cannot be empty.")
			}
			res, err := o.search(ctx, query)
			if err != nil {
				return nil, err
			}
			return &tools.Response{
				Raw:  res,
				Text: res.String(),
			}, nil
		})
}

func (o *options) search(ctx context.Context, query string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	client := tavilygo.NewClient(o.apiKey)
	if o.baseURL != "" {
		client.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		client.HTTPClient = o.httpClient
	}

	started := time.Now()
	resp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         query,
		SearchDepth:   o.searchDepth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"query", query,
		"results", len(resp.Results),
		"elapsed", time.Since(started).String(),
	)

	return &Result{
		Results: resp.Results,
		Answer:  resp.Answer,
	}, nil
}
