// Package llms provides unified support for chat completion with Language Models (LLMs) from various providers.
//
// Each subpackage includes a provider-specific adapter that implements the Model interface
// on top of the official provider SDK. The agent loop uses plain text replies,
// so adapters map the conversation log onto the provider's chat turns:
// the tool role is sent as user, and consecutive turns of the same role are merged.
package llms
