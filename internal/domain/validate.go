package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(kind error, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	return nil
}
