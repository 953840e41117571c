// Package validation checks request structs with go-playground/validator and converts
// failures into apperr validation errors keyed by json field name.
package validation

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"procureflow/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// notblank rejects strings that are empty after trimming.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// maxbytes limits the encoded length of a string, for inputs like bcrypt passwords
	// whose limit is in bytes rather than characters.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})

	// decimals are compared as float64 so gt/lt/min/max tags work on prices.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Struct validates s. It returns nil or an *apperr.Error of kind validation.
func Struct(message string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return apperr.Validation(message, nil)
	}

	fields := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		fields[vErr.Field()] = describe(vErr)
	}
	return apperr.Validation(message, fields)
}

func describe(vErr validator.FieldError) string {
	switch vErr.Tag() {
	case "required":
		return "value missing"
	case "notblank":
		return "must not be blank"
	case "gt":
		return "must be greater than " + vErr.Param()
	case "gte", "min":
		if vErr.Kind() == reflect.String {
			return "must be at least " + vErr.Param() + " characters"
		}
		return "must be at least " + vErr.Param()
	case "max", "lte":
		if vErr.Kind() == reflect.String {
			return "must be at most " + vErr.Param() + " characters"
		}
		return "must be at most " + vErr.Param()
	case "maxbytes":
		return "must be at most " + vErr.Param() + " bytes"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}
