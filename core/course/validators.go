package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/findclassnz/findclass/core"
)

var (
	categoryTag  = "category"
	categoryText = "invalid category"

	levelTag  = "courselevel"
	levelText = "invalid level"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, func(fl validator.FieldLevel) bool {
		return IsValidCategory(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(levelTag, func(fl validator.FieldLevel) bool {
		return IsValidLevel(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)
}
