package chathub

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"schoolchat/backend/internal/config"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

// messageContentTag checks message text: not blank, at most
// config.MaxMessageLength characters.
const messageContentTag = "message_content"

// payloadValidator checks decoded inbound payloads and reports field errors
// by their json names.
type payloadValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newPayloadValidator() *payloadValidator {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(messageContentTag, func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok || strings.TrimSpace(str) == "" {
			return false
		}
		return utf8.RuneCountInString(str) <= config.MaxMessageLength
	})
	_ = v.RegisterTranslation(messageContentTag, trans,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fmt.Sprintf("%s must be between 1 and %d characters", fe.Field(), config.MaxMessageLength)
		})

	return &payloadValidator{validate: v, translator: trans}
}

// Check validates the payload and returns an ErrValidation describing every bad field.
func (p *payloadValidator) Check(payload interface{}) error {
	err := p.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newError(ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(p.translator))
	}
	sort.Strings(msgs)
	return newErrorf(ErrValidation, "%s", strings.Join(msgs, "; "))
}
