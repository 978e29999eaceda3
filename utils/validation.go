package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the `validate` tags of a request DTO.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidationError renders validator errors as 400 {success:false, message, errors:{field: rule}}.
func ValidationError(c *fiber.Ctx, err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return Error(c, fiber.StatusBadRequest, "Invalid input")
	}

	fields := make(map[string]string, len(ve))
	for _, fieldErr := range ve {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", fields)
}

// ParseAndValidate decodes the JSON body into dst and validates it, writing the 400 response on failure.
// It returns (true, nil) when the caller may proceed.
func ParseAndValidate(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := ValidateStruct(dst); err != nil {
		return false, ValidationError(c, err)
	}
	return true, nil
}
