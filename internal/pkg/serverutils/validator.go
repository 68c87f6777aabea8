package serverutils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"ai-todo-agent-be/internal/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateRequest runs the struct's `validate` tags and converts the first
// failure into a validation error with a readable message.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return apperror.Validation("Invalid request")
	}

	fe := validationErrors[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperror.Validation(fmt.Sprintf("%s is required", field))
	case "max":
		return apperror.Validation(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "min":
		return apperror.Validation(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	default:
		return apperror.Validation(fmt.Sprintf("%s is invalid", field))
	}
}
