package json

import (
	"encoding/json"
	"reflect"

	"github.com/bububa/ljson"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

type Encoder struct {
	indent string
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// WithIndent enables indented output
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Format() string {
	return "json"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.indent != "" {
		return json.MarshalIndent(v, "", e.indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON leniently, surrounding text and code fences are removed.
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(bs)
	return ljson.Unmarshal(data, ret)
}

// Validate validates struct values with `validate` tags
func (e *Encoder) Validate(req any) error {
	if reflect.Indirect(reflect.ValueOf(req)).Kind() != reflect.Struct {
		return nil
	}
	validate := validator.New()
	return validate.Struct(req)
}
