package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Params are the decoded action inputs of a tool call
type Params map[string]any

// Has returns true if the parameter is present and not null
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// String returns the string value, or empty string
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer value, or 0
func (p Params) Int(name string) int64 {
	switch v := p[name].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return int64(f)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	}
	return 0
}

// Float returns the number value, or 0
func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean value, or false
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// Strings returns the array value as strings,
// a comma separated string is split
func (p Params) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return v
	case []any:
		res := make([]string, 0, len(v))
		for _, item := range v {
			res = append(res, strings.TrimSpace(fmt.Sprint(item)))
		}
		return res
	case string:
		var res []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				res = append(res, item)
			}
		}
		return res
	}
	return nil
}

// Emails returns the addresses of a comma separated list,
// or an error wrapping ErrInvalidInput if the list is empty or has an invalid address.
func (p Params) Emails(name string) ([]string, error) {
	list := p.Strings(name)
	if len(list) == 0 {
		return nil, InvalidInputf("The '%s' field cannot be empty.", name)
	}
	for _, email := range list {
		if err := validate.Var(email, "email"); err != nil {
			return nil, InvalidInputf("Invalid email address: %s", email)
		}
	}
	return list, nil
}
