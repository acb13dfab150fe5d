// Package agent provides the bounded ReAct control loop.
//
// A run reads the conversation from the store, asks the LLM for a single next action,
// dispatches the named tool and folds its result back into the conversation,
// until the LLM provides the final answer or the iteration budget is spent.
// Every failure visible to the LLM (unparsable reply, unknown tool, invalid input,
// tool error or panic) is appended as a tool message and consumes one iteration.
package agent
