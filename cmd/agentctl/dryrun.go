package main

import (
	"context"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/pkg/llms"
	"github.com/effective-security/agentloop/react"
)

// dryRun is the offline model: it answers with the last message of the conversation
type dryRun struct{}

var _ llms.Model = dryRun{}

func (dryRun) GetName() string {
	return "dry-run"
}

func (dryRun) GetProviderType() llms.ProviderType {
	return "DRYRUN"
}

func (dryRun) Chat(_ context.Context, req *llms.ChatRequest) (*llms.ChatResponse, error) {
	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	text, err := react.Format("Dry run, repeating the last message", react.FinalAnswer, map[string]any{
		"answer": last,
	})
	if err != nil {
		return nil, err
	}
	return &llms.ChatResponse{
		Text:       text,
		StopReason: "stop",
		Usage: chatmodel.Usage{
			InputTokens:  int64(len(req.Messages)),
			OutputTokens: 1,
		},
	}, nil
}
