// Package validator wraps go-playground validation and registers the
// call-domain rules the request DTOs rely on.
package validator

import (
	"voicedesk_backend/platform/phone"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs by tag.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the domain rules registered. The phone_e164
// tag accepts any number the phone package can parse as dialable.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("phone_e164", func(fl validator.FieldLevel) bool {
		return phone.Valid(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates a struct based on its validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers an additional custom rule.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
