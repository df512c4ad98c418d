package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const maxBodyBytes = 1 << 16

// ErrMalformedBody is returned by Bind when the body is not a single JSON object.
var ErrMalformedBody = errors.New("malformed JSON body")

// FieldError describes one failed validation rule using the JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Bind decodes the JSON body into dst and runs struct validation. It returns ErrMalformedBody for
// undecodable input and a []FieldError (wrapped in ValidationError) for rule violations.
func Bind(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if err := validate.Struct(dst); err != nil {
		if fe := FormatValidationErrors(err); fe != nil {
			return &ValidationError{Fields: fe}
		}
		return err
	}
	return nil
}

// ValidationError carries the field errors of a failed Bind.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FormatValidationErrors converts validator.ValidationErrors into FieldErrors; nil for any other error.
func FormatValidationErrors(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]FieldError, len(ve))
	for i, fe := range ve {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag()}
		switch fe.Tag() {
		case "required":
			out[i].Message = fmt.Sprintf("%s is required", fe.Field())
		case "notblank":
			out[i].Message = fmt.Sprintf("%s must not be blank", fe.Field())
		case "max":
			out[i].Message = fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
		case "min":
			out[i].Message = fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
		case "numeric":
			out[i].Message = fmt.Sprintf("%s must contain digits only", fe.Field())
		default:
			out[i].Message = fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
		}
	}
	return out
}
