package inference

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the structural type expected for a top-level field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Shape declares the required top-level fields of a result and their kinds.
// Every listed field must be present. Values are not checked beyond kind.
type Shape map[string]Kind

// ShapeError lists the fields that failed validation.
type ShapeError struct {
	Missing    []string
	Mismatched []string
}

func (e *ShapeError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, "wrong kind for "+strings.Join(e.Mismatched, ", "))
	}
	return "shape mismatch: " + strings.Join(parts, "; ")
}

// Validate checks obj, a decoded JSON object, against the shape.
func (s Shape) Validate(obj map[string]any) error {
	var shapeErr ShapeError
	for _, field := range s.fields() {
		value, ok := obj[field]
		if !ok {
			shapeErr.Missing = append(shapeErr.Missing, field)
			continue
		}
		want := s[field]
		if got := kindOf(value); got != want {
			shapeErr.Mismatched = append(shapeErr.Mismatched, fmt.Sprintf("%s (want %s, got %s)", field, want, got))
		}
	}
	if len(shapeErr.Missing) == 0 && len(shapeErr.Mismatched) == 0 {
		return nil
	}
	return &shapeErr
}

func (s Shape) fields() []string {
	fields := make([]string, 0, len(s))
	for field := range s {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func kindOf(value any) Kind {
	switch value.(type) {
	case string:
		return KindString
	case float64:
		return KindNumber
	case bool:
		return KindBool
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
