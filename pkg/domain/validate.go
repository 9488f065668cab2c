package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	structCheck  *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		structCheck = validator.New(validator.WithRequiredStructEnabled())
		structCheck.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return structCheck
}

// ValidateRequired checks the `validate` struct tags of a record and reports
// missing values as field errors keyed by their JSON names.
func ValidateRequired(rec any) error {
	err := recordValidator().Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, &FieldError{
			Field:   fe.Field(),
			Message: requiredMessage(fe.Field()),
		})
	}
	return out
}

func requiredMessage(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return "Required input is missing."
	}
	return strings.ToUpper(label[:1]) + label[1:] + " is required"
}
