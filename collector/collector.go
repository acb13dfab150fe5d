// Package collector keeps the audit trail of tool invocations of a single agent run.
package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/encoding"
	"github.com/google/uuid"
)

// CallIDPrefix is the prefix of tool call IDs
const CallIDPrefix = "tool-call--"

// Kind is the outcome of a tool invocation
type Kind string

const (
	KindSuccess         Kind = "success"
	KindValidationError Kind = "validation_error"
	KindRuntimeError    Kind = "runtime_error"
)

// Usage of the tool call
type Usage struct {
	ElapsedSeconds float64 `json:"elapsed_seconds" yaml:"elapsed_seconds" toml:"elapsed_seconds"`
}

// Result is an immutable record of a tool invocation
type Result struct {
	CallID             string         `json:"call_id" yaml:"call_id" toml:"call_id"`
	ToolName           string         `json:"tool_name" yaml:"tool_name" toml:"tool_name"`
	Input              map[string]any `json:"input,omitempty" yaml:"input,omitempty" toml:"input,omitempty"`
	RawResponse        any            `json:"raw_response,omitempty" yaml:"raw_response,omitempty" toml:"raw_response,omitempty"`
	UserFacingResponse string         `json:"user_facing_response" yaml:"user_facing_response" toml:"user_facing_response"`
	Kind               Kind           `json:"kind" yaml:"kind" toml:"kind"`
	Usage              Usage          `json:"usage" yaml:"usage" toml:"usage"`
	InputDigest        string         `json:"input_digest" yaml:"input_digest" toml:"input_digest"`
	Timestamp          time.Time      `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
}

// Collector records tool invocations in order
type Collector struct {
	lock       sync.RWMutex
	results    []*Result
	byID       map[string]*Result
	lastCallID string
	now        func() time.Time
}

// Option configures the Collector
type Option func(*Collector)

// WithClock sets the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New returns a collector for a single run
func New(opts ...Option) *Collector {
	c := &Collector{
		byID: make(map[string]*Result),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCallID returns a new tool call ID
func NewCallID() string {
	return CallIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RecordOption configures the recorded Result
type RecordOption func(*Result)

// WithCallID sets the call ID of the recorded result,
// by default a new ID is generated.
func WithCallID(id string) RecordOption {
	return func(r *Result) {
		r.CallID = id
	}
}

// Record stores the result of a tool invocation and sets it as the last call
func (c *Collector) Record(toolName string, input map[string]any, raw any, userFacing string, kind Kind, elapsed time.Duration, opts ...RecordOption) *Result {
	r := &Result{
		ToolName:           toolName,
		Input:              input,
		RawResponse:        raw,
		UserFacingResponse: userFacing,
		Kind:               kind,
		Usage:              Usage{ElapsedSeconds: elapsed.Seconds()},
		InputDigest:        Digest(toolName, input),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.CallID == "" {
		r.CallID = NewCallID()
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	r.Timestamp = c.now().UTC()
	c.results = append(c.results, r)
	c.byID[r.CallID] = r
	c.lastCallID = r.CallID
	return r
}

// GetLastCallID returns the ID of the last recorded call
func (c *Collector) GetLastCallID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.lastCallID
}

// Get returns the result by call ID
func (c *Collector) Get(callID string) (*Result, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	r, ok := c.byID[callID]
	return r, ok
}

// All returns a copy of the results in record order
func (c *Collector) All() []*Result {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]*Result(nil), c.results...)
}

func (c *Collector) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.results)
}

// Seen returns the ID of the last call of the tool with identical input
func (c *Collector) Seen(toolName string, input map[string]any) (string, bool) {
	digest := Digest(toolName, input)

	c.lock.RLock()
	defer c.lock.RUnlock()
	for i := len(c.results) - 1; i >= 0; i-- {
		r := c.results[i]
		if r.ToolName == toolName && r.InputDigest == digest {
			return r.CallID, true
		}
	}
	return "", false
}

// Digest returns the hash of the tool name and canonical JSON input
func Digest(toolName string, input map[string]any) string {
	h := xxhash.New()
	_, _ = h.WriteString(toolName)
	_, _ = h.Write([]byte{0})
	if len(input) > 0 {
		// map keys are sorted by encoding/json
		js, _ := json.Marshal(input)
		_, _ = h.Write(js)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// AuditLog is the exported form of the collector
type AuditLog struct {
	Calls []*Result `json:"calls" yaml:"calls" toml:"calls"`
}

// Export writes the audit log with the encoder
func (c *Collector) Export(w io.Writer, enc encoding.Encoder) error {
	bs, err := enc.Marshal(&AuditLog{Calls: c.All()})
	if err != nil {
		return errors.Wrapf(err, "failed to encode audit log as %s", enc.Format())
	}
	_, err = w.Write(bs)
	return errors.WithStack(err)
}
