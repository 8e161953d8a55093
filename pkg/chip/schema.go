package chip

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Type is a chip request/response field validator.
type Type interface {
	Name() string
	Validate(value any) error
}

type stringType struct{}

func (stringType) Name() string { return "string" }
func (stringType) Validate(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	return nil
}

type intType struct{}

func (intType) Name() string { return "int" }
func (intType) Validate(v any) error {
	switch n := v.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		if n == float64(int64(n)) {
			return nil
		}
		return fmt.Errorf("expected int, got non-whole float")
	default:
		return fmt.Errorf("expected int, got %T", v)
	}
}

type floatType struct{}

func (floatType) Name() string { return "float" }
func (floatType) Validate(v any) error {
	switch v.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", v)
	}
}

type boolType struct{}

func (boolType) Name() string { return "bool" }
func (boolType) Validate(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", v)
	}
	return nil
}

type anyType struct{}

func (anyType) Name() string      { return "any" }
func (anyType) Validate(any) error { return nil }

type sliceType struct{ elem Type }

func (t sliceType) Name() string { return fmt.Sprintf("[%s]", t.elem.Name()) }
func (t sliceType) Validate(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected sequence, got %T", v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// String, Int, Float, Bool, Any, and Slice construct Type validators for
// chip request/response schemas.
func String() Type          { return stringType{} }
func Int() Type             { return intType{} }
func Float() Type           { return floatType{} }
func Bool() Type            { return boolType{} }
func Any() Type             { return anyType{} }
func Slice(elem Type) Type  { return sliceType{elem: elem} }

// Schema is a map of field name to expected Type. A nil or empty Schema
// performs no validation, matching a chip declared to accept/return an
// unconstrained structured value.
type Schema map[string]Type

// ValidationError reports one field's validation failure.
type ValidationError struct {
	Key    string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// AggregateError collects every ValidationError found in one Validate call.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err)
	}
	return msg
}

// Validate checks data against schema, aggregating every field failure.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	var errs []error
	for field, typ := range schema {
		value, ok := data[field]
		if !ok {
			errs = append(errs, &ValidationError{Key: field, Reason: "required"})
			continue
		}
		if err := typ.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: field, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ParseType parses a schema type name ("string", "int", "float", "bool",
// "any", "[string]", ...) into a Type, for schemas declared in chipset
// registration code as plain strings.
func ParseType(name string) (Type, error) {
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	switch name {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "any", "":
		return Any(), nil
	default:
		return nil, fmt.Errorf("chip: unsupported schema type %q", name)
	}
}

// ParseSchema converts a map of field name -> type name into a Schema.
func ParseSchema(fields map[string]string) (Schema, error) {
	out := make(Schema, len(fields))
	for field, typeName := range fields {
		t, err := ParseType(typeName)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out[field] = t
	}
	return out, nil
}

// MarshalJSON serializes a Schema as field name -> type name.
func (s Schema) MarshalJSON() ([]byte, error) {
	raw := make(map[string]string, len(s))
	for k, t := range s {
		raw[k] = t.Name()
	}
	return json.Marshal(raw)
}
