package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	ierr "github.com/stackbill/stackbill/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRequest validates a DTO using its struct tags and converts the
// first failure into a validation error with a field-level hint.
func ValidateRequest(req interface{}) error {
	if req == nil {
		return ierr.NewError("request cannot be nil").
			WithHint("Request cannot be nil").
			Mark(ierr.ErrValidation)
	}

	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return ierr.WithError(err).
			WithHintf("Field %s failed validation on the %s rule", first.Field(), first.Tag()).
			WithReportableDetails(map[string]interface{}{
				"field": first.Field(),
				"rule":  first.Tag(),
			}).
			Mark(ierr.ErrValidation)
	}

	return ierr.WithError(err).
		WithHint("Request validation failed").
		Mark(ierr.ErrValidation)
}
