// Package googleai implements the Gemini provider on top of the genai SDK.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/x/values"
	"google.golang.org/genai"
)

const (
	RoleModel = "model"
	RoleUser  = "user"
)

var (
	ErrEmptyResponse = errors.New("googleai: no response")
	ErrMissingAuth   = errors.New("googleai: missing API key or credentials, set GOOGLEAI_API_KEY environment variable")
)

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   *options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	o := newOptions(opts...)

	cfg := &genai.ClientConfig{
		APIKey:      o.apiKey,
		Credentials: o.credentials,
		HTTPClient:  o.httpClient,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: o.baseURL,
		},
	}
	if o.project != "" {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = o.project
		cfg.Location = o.location
	} else if o.apiKey == "" && o.credentials == nil {
		return nil, ErrMissingAuth
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}
	return &GoogleAI{
		client: client,
		opts:   o,
	}, nil
}

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.model
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// Chat implements the Model interface.
func (g *GoogleAI) Chat(ctx context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
	history, cfg, err := g.GenerateConfig(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.ModelName(g.opts.model), history, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	res := &llms.ChatResponse{
		Text:       text.String(),
		StopReason: string(candidate.FinishReason),
	}
	if usage := resp.UsageMetadata; usage != nil {
		res.Usage = chatmodel.Usage{
			InputTokens:  int64(usage.PromptTokenCount),
			OutputTokens: int64(usage.CandidatesTokenCount + usage.ThoughtsTokenCount),
		}
	}
	return res, nil
}

// GenerateConfig converts the request to the genai history and config.
func (g *GoogleAI) GenerateConfig(req *llms.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, turns := llms.Turns(req.Messages)
	if len(turns) == 0 {
		return nil, nil, errors.WithMessage(llms.ErrNoMessages, "googleai")
	}

	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := RoleUser
		if t.Role == llms.RoleAssistant {
			role = RoleModel
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}

	temperature := values.NumbersCoalesce(req.Temperature, g.opts.temperature)
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(values.NumbersCoalesce(req.MaxTokens, g.opts.maxTokens)),
		Temperature:     genai.Ptr(float32(temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	cfg.SafetySettings = []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: g.opts.harm,
		},
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: g.opts.harm,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: g.opts.harm,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: g.opts.harm,
		},
	}
	return history, cfg, nil
}
