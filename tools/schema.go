package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ParamType is the JSON type of a tool parameter
type ParamType string

// Supported parameter types
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
)

// Param describes a single tool input
type Param struct {
	Name        string    `json:"name" yaml:"name" validate:"required"`
	Type        ParamType `json:"type" yaml:"type" validate:"required,oneof=string integer number boolean array"`
	Description string    `json:"description" yaml:"description" validate:"required"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// Schema is the ordered list of tool inputs
type Schema struct {
	Params []Param `json:"params" yaml:"params" validate:"dive"`
}

// declaration is the validated shape of a tool
type declaration struct {
	Name        string `validate:"required"`
	Description string `validate:"required"`
	OutputType  string `validate:"required,oneof=string integer number boolean array object any null"`
	Schema      Schema
}

var validate = validator.New()

// Validate returns SchemaError if the parameters of the tool are not valid
func (s Schema) Validate(tool string) error {
	if err := validate.Struct(s); err != nil {
		return toSchemaError(tool, err)
	}
	seen := make(map[string]bool, len(s.Params))
	for i, p := range s.Params {
		if seen[p.Name] {
			return schemaErr(tool, fmt.Sprintf("params[%d].Name", i), "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func validateDeclaration(d *declaration) error {
	if err := validate.Struct(d); err != nil {
		return toSchemaError(d.Name, err)
	}
	if d.Name == FinalAnswerName {
		return schemaErr(d.Name, "Name", "%q is reserved", FinalAnswerName)
	}
	if strings.ContainsAny(d.Name, "[]<> \t\r\n") {
		return schemaErr(d.Name, "Name", "must not contain spaces or brackets")
	}
	return d.Schema.Validate(d.Name)
}

func toSchemaError(tool string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return schemaErr(tool, "", "%s", err.Error())
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "Params["); i >= 0 {
		field = "params" + field[i+len("Params"):]
	} else if i := strings.LastIndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return schemaErr(tool, field, "must not be empty")
	case "oneof":
		return schemaErr(tool, field, "unsupported type %q, only supported: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return schemaErr(tool, field, "failed on %q validation", fe.Tag())
	}
}

// Param returns the parameter by name
func (s Schema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Required returns the names of the required parameters
func (s Schema) Required() []string {
	var res []string
	for _, p := range s.Params {
		if p.Required {
			res = append(res, p.Name)
		}
	}
	return res
}

// Properties returns the parameters as ordered JSON schema properties
func (s Schema) Properties() *orderedmap.OrderedMap[string, *jsonschema.Schema] {
	props := orderedmap.New[string, *jsonschema.Schema]()
	for _, p := range s.Params {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if !p.Required {
			prop.Extras = map[string]any{"nullable": true}
		}
		props.Set(p.Name, prop)
	}
	return props
}

// String returns the compact JSON of the properties in declaration order
func (s Schema) String() string {
	js, err := json.Marshal(s.Properties())
	if err != nil {
		return "{}"
	}
	return string(js)
}

// Check returns an error wrapping ErrInvalidInput
// if the params do not satisfy the schema
func (s Schema) Check(params Params) error {
	var problems []string
	for _, p := range s.Params {
		v, ok := params[p.Name]
		if !ok || v == nil {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		if !isType(p.Type, v) {
			problems = append(problems, fmt.Sprintf("parameter %q must be of type %s", p.Name, p.Type))
		}
	}

	var unknown []string
	for k := range params {
		if _, ok := s.Param(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		problems = append(problems, fmt.Sprintf("unknown parameter %q", k))
	}

	if len(problems) > 0 {
		return errors.Mark(errors.Newf("invalid input: %s", strings.Join(problems, "; ")), ErrInvalidInput)
	}
	return nil
}

func isType(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Int64()
			return err == nil
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		}
		return isIntKind(v)
	case TypeNumber:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Float64()
			return err == nil
		case float64, float32:
			return true
		}
		return isIntKind(v)
	case TypeArray:
		if v == nil {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	}
	return false
}

func isIntKind(v any) bool {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
