// Package validator checks request DTOs against their `validate` tags.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator reports failures by JSON field name so messages match the
// request body the client sent.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// FieldErrors maps a JSON field name to the rule it broke.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, rule := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", field, rule))
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

// Struct validates s. Tag violations come back as FieldErrors.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := make(FieldErrors, len(ves))
	for _, fe := range ves {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:]] = rule
	}
	return out
}

// RegisterEnum adds a tag that accepts a string field when valid says so.
func (val *Validator) RegisterEnum(tag string, valid func(string) bool) error {
	return val.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	})
}
