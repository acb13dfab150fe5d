package encoding

import (
	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/agentloop/encoding/json"
	tomlenc "github.com/effective-security/agentloop/encoding/toml"
	yamlenc "github.com/effective-security/agentloop/encoding/yaml"
)

// Encoder serializes audit records and configuration documents
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(bs []byte, v any) error
	// Format returns the name of the format
	Format() Format
}

// Validator is implemented by encoders that can validate decoded values
type Validator interface {
	Validate(any) error
}

type Format = string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatDefault is the default format for the encoder.
var FormatDefault = FormatJSON

// NewEncoder returns encoder for the format
func NewEncoder(format Format) (Encoder, error) {
	switch format {
	case FormatJSON, "":
		return jsonenc.NewEncoder(), nil
	case FormatYAML, "yml":
		return yamlenc.NewEncoder(), nil
	case FormatTOML:
		return tomlenc.NewEncoder(), nil
	default:
		return nil, errors.Errorf("unsupported format: %q", format)
	}
}

// Decode unmarshals the value and validates it,
// if the encoder supports validation.
func Decode(enc Encoder, bs []byte, v any) error {
	if err := enc.Unmarshal(bs, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", enc.Format())
	}
	if validator, ok := enc.(Validator); ok {
		if err := validator.Validate(v); err != nil {
			return errors.Wrap(err, "failed to validate")
		}
	}
	return nil
}

var (
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
)
