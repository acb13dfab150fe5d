package yaml

import (
	"reflect"

	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

type Encoder struct {
	jsonTags bool
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// WithJSONTags marshals values through their JSON form,
// for types without yaml tags.
func (e *Encoder) WithJSONTags() *Encoder {
	e.jsonTags = true
	return e
}

func (e *Encoder) Format() string {
	return "yaml"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.jsonTags {
		return k8syaml.Marshal(v)
	}
	return yaml.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	if e.jsonTags {
		return k8syaml.Unmarshal(data, ret)
	}
	return yaml.Unmarshal(data, ret)
}

// Validate validates struct values with `validate` tags
func (e *Encoder) Validate(req any) error {
	if reflect.Indirect(reflect.ValueOf(req)).Kind() != reflect.Struct {
		return nil
	}
	validate := validator.New()
	return validate.Struct(req)
}
