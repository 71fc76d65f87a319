package httpapi

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// validationErrors flattens validator output into field -> message.
func validationErrors(err error) map[string]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		switch fieldErr.Tag() {
		case "required":
			out[fieldErr.Field()] = "is required"
		case "max":
			out[fieldErr.Field()] = "must be at most " + fieldErr.Param() + " characters"
		default:
			out[fieldErr.Field()] = "is invalid"
		}
	}
	return out
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}
