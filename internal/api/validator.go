package api

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"stormwatch/internal/types"
)

// Validator wraps go-playground/validator and translates field errors into
// the shared AppError shape so handlers return uniform 400 bodies.
type Validator struct {
	validate *validator.Validate
}

// NewValidator constructs a Validator with struct tag validation enabled.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates s against its `validate` tags. On failure it
// returns a validation AppError whose details map field names to the rule
// that rejected them.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}

	appErr := types.NewAppError(types.ErrCodeValidationMissingField, "request validation failed", err)
	appErr.Details = details
	return appErr
}
