package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// Validator runs struct tag validation and renders one English message per violated rule.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator builds a validator reporting JSON field names.
func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		trans = nil
	}
	return &Validator{validate: validate, trans: trans}
}

// Messages returns every tag rule s violates, empty when valid.
func (v *Validator) Messages(s interface{}) []string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if v.trans != nil {
			messages = append(messages, fe.Translate(v.trans))
			continue
		}
		messages = append(messages, fe.Field()+" failed "+fe.Tag())
	}
	return messages
}
