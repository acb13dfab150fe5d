// Package prompts renders the agent system prompt and the message masks
// applied to user input and tool results before they are stored in the conversation.
package prompts
