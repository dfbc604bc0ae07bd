package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ShippingAddress is collected fresh for every checkout session. Fields are
// only checked for presence; whitespace-only values count as empty.
type ShippingAddress struct {
	FullName string `json:"fullName" validate:"notblank"`
	Address  string `json:"address" validate:"notblank"`
	City     string `json:"city" validate:"notblank"`
	State    string `json:"state" validate:"notblank"`
	ZipCode  string `json:"zipCode" validate:"notblank"`
	Phone    string `json:"phone" validate:"notblank"`
}

var addressValidator = newAddressValidator()

func newAddressValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every empty field at once.
func (a ShippingAddress) Validate() error {
	err := addressValidator.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate shipping address: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

// ValidationError is shown inline next to the form and blocks the step.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "please fill in all required fields: " + strings.Join(e.Fields, ", ")
}
