package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the `validate` struct tags of a request model and returns
// one FieldError per failed field, or nil.
func Validate(v any) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: err.Error(), Code: "INVALID"}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
			Code:    fieldCode(fe.Tag()),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	var unit string
	switch fe.Kind() {
	case reflect.Slice:
		unit = " items"
	case reflect.String:
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte", "min":
		if unit != "" {
			return "must have at least " + fe.Param() + unit
		}
		return "must be at least " + fe.Param()
	case "lte", "max":
		if unit != "" {
			return "must have at most " + fe.Param() + unit
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

func fieldCode(tag string) string {
	switch tag {
	case "required":
		return "REQUIRED"
	case "gte", "lte", "min", "max":
		return "OUT_OF_RANGE"
	case "oneof":
		return "INVALID_VALUE"
	}
	return "INVALID"
}
