package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is a user-correctable validation failure attached to a single field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError groups field errors raised while saving a record.
type ValidationError struct {
	Errors []*FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors flattens validation failures into field -> message so callers can
// surface them next to the offending input. Errors that carry no field
// information yield an empty map.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		out[fe.Field] = fe.Message
		return out
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, e := range ve.Errors {
			if _, seen := out[e.Field]; !seen {
				out[e.Field] = e.Message
			}
		}
		return out
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		for _, v := range rv.Result.Violations {
			if v.Severity != SeverityBlock || v.Field == "" {
				continue
			}
			if _, seen := out[v.Field]; !seen {
				out[v.Field] = v.Message
			}
		}
	}
	return out
}
