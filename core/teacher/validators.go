package teacher

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/findclassnz/findclass/core"
)

var (
	trustLevelTag  = "trustlevel"
	trustLevelText = "trust level must be one of B, A or S"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(trustLevelTag, func(fl validator.FieldLevel) bool {
		return IsValidTrustLevel(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, trustLevelTag, trustLevelText)
}
