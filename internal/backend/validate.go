package backend

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func credentialValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks credentials locally before they are sent.
func (c Credentials) Validate() error {
	c.Email = strings.TrimSpace(c.Email)
	err := credentialValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError("validate credentials", []FieldError{{Message: err.Error()}})
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: strings.ToLower(fe.Field()), Message: fieldMessage(fe)})
	}
	return validationError("validate credentials", fields)
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return "Please enter your " + name + "."
	case "email":
		return "Please enter a valid email address."
	default:
		return "Invalid " + name + "."
	}
}
