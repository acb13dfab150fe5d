// Package llmfactory creates LLM models from a YAML configuration,
// supporting multiple providers (OpenAI, Azure, Anthropic, Google AI, Bedrock, Perplexity)
// and per-agent model selection.
package llmfactory
