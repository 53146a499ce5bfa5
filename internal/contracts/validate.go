package contracts

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeAndValidate unmarshals raw JSON into dst and runs struct validation.
// Failures come back as validation.failed domain errors with a safe summary.
func DecodeAndValidate(raw []byte, dst any) *domain.Error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.ErrValidationFailed("body is not valid JSON")
	}
	return Validate(dst)
}

// Validate runs struct validation only.
func Validate(dst any) *domain.Error {
	if err := validate.Struct(dst); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
			}
			return domain.ErrValidationFailed("invalid fields: " + strings.Join(fields, ", "))
		}
		return domain.ErrValidationFailed("")
	}
	return nil
}
