package toml

import (
	"reflect"

	"github.com/BurntSushi/toml"
	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Format() string {
	return "toml"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	return toml.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return toml.Unmarshal(data, ret)
}

// Validate validates struct values with `validate` tags
func (e *Encoder) Validate(req any) error {
	if reflect.Indirect(reflect.ValueOf(req)).Kind() != reflect.Struct {
		return nil
	}
	validate := validator.New()
	return validate.Struct(req)
}
