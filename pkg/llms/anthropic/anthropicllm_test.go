package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/pkg/llms/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Setenv(anthropic.TokenEnvVarName, "")

	tests := []struct {
		name        string
		opts        []anthropic.Option
		errContains string
	}{
		{
			name:        "missing token",
			opts:        []anthropic.Option{anthropic.WithModel("claude-3-5-sonnet-20241022")},
			errContains: "missing API key",
		},
		{
			name:        "missing model",
			opts:        []anthropic.Option{anthropic.WithToken("fake-token")},
			errContains: "model is required",
		},
		{
			name: "valid configuration",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-5-sonnet-20241022"),
			},
		},
		{
			name: "with options",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-5-sonnet-20241022"),
				anthropic.WithBaseURL("https://custom.anthropic.com"),
				anthropic.WithHTTPClient(&http.Client{}),
				anthropic.WithAnthropicBetaHeader("beta-feature-1"),
				anthropic.WithMaxRetries(0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := anthropic.New(tt.opts...)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "claude-3-5-sonnet-20241022", llm.GetName())
			assert.Equal(t, llms.ProviderAnthropic, llm.GetProviderType())
		})
	}
}

func TestMessageParams(t *testing.T) {
	req := &llms.ChatRequest{
		Messages: []*chatmodel.Message{
			chatmodel.SystemMessage("system"),
			chatmodel.UserMessage("hi", "1"),
		},
		Temperature: 0.2,
	}
	params, err := anthropic.MessageParams("claude", req)
	require.NoError(t, err)
	assert.Equal(t, "claude", string(params.Model))
	assert.EqualValues(t, anthropic.DefaultMaxTokens, params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "system", params.System[0].Text)
	assert.Len(t, params.Messages, 1)

	_, err = anthropic.MessageParams("claude", &llms.ChatRequest{
		Messages: []*chatmodel.Message{chatmodel.SystemMessage("system")},
	})
	assert.ErrorIs(t, err, llms.ErrNoMessages)
}

func TestChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Thought: done\nAction:\n{\"action\":\"final_answer\",\"action_input\":{\"answer\":\"hi\"}}<end_action>"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	llm, err := anthropic.New(
		anthropic.WithToken("fake-token"),
		anthropic.WithModel("claude-3-5-sonnet-20241022"),
		anthropic.WithBaseURL(srv.URL),
		anthropic.WithMaxRetries(0),
	)
	require.NoError(t, err)

	resp, err := llm.Chat(context.Background(), &llms.ChatRequest{
		Messages: []*chatmodel.Message{
			chatmodel.SystemMessage("You are an expert assistant."),
			chatmodel.UserMessage("say hi", "wamid.1"),
			chatmodel.AssistantMessage("Thought: t\nAction:\n{}<end_action>", "llm-call--1"),
			chatmodel.ToolMessage("Action executed: **x**\nResponse:\nok", "tool-call--1"),
		},
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "final_answer")
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, chatmodel.Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)

	assert.Equal(t, "claude-3-5-sonnet-20241022", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
}

func TestChat_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	llm, err := anthropic.New(
		anthropic.WithToken("fake-token"),
		anthropic.WithModel("claude"),
		anthropic.WithBaseURL(srv.URL),
		anthropic.WithMaxRetries(0),
	)
	require.NoError(t, err)

	_, err = llm.Chat(context.Background(), &llms.ChatRequest{
		Messages: []*chatmodel.Message{chatmodel.UserMessage("hi", "1")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: failed to create message")
}
