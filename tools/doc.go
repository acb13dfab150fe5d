// Package tools defines tool descriptors for the agent: a declarative input
// schema, a handler, and a Registry that validates declarations and exports
// them in the text form the system prompt consumes.
package tools
