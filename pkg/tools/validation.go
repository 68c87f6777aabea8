package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so messages match what the model sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeArgs unmarshals raw into dst. It returns the public validation
// message on failure.
func decodeArgs(raw json.RawMessage, dst any) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr.Type)), false
		}
		return ErrInvalidArguments, false
	}
	return "", true
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int64, reflect.Float64:
		return "number"
	default:
		return "valid value"
	}
}

// checkArgs runs the struct's validate tags and converts the first failure
// into a readable message.
func checkArgs(args any) (string, bool) {
	err := validate.Struct(args)
	if err == nil {
		return "", true
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return ErrInvalidArguments, false
	}

	fe := validationErrors[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field), false
	case "required_without":
		return ErrTaskRefRequired, false
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("%s must not be empty", field), false
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param()), false
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param()), false
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")), false
	default:
		return fmt.Sprintf("%s is invalid", field), false
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
