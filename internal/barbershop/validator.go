package barbershop

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	hhmmPattern     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	hexColorPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{3}){1,2}$`)
)

// FormValidator は店舗フォームの入力をstructタグの制約で検証する。
type FormValidator struct {
	validate *validator.Validate
}

// NewFormValidator はFormValidatorを生成する。
// エラーメッセージにはJSONのフィールド名を使用する。
func NewFormValidator() *FormValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	// 登録に失敗するのはタグ名が空の場合のみ
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("color_hex", func(fl validator.FieldLevel) bool {
		return hexColorPattern.MatchString(fl.Field().String())
	})

	return &FormValidator{validate: v}
}

// Validate は入力を検証し、違反メッセージの一覧を返す。違反がなければnil。
func (v *FormValidator) Validate(input any) []string {
	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		messages = append(messages, violationMessage(fe))
	}
	return messages
}

// violationMessage は1件の違反を利用者向けメッセージに変換する。
func violationMessage(fe validator.FieldError) string {
	field := fieldPath(fe)

	switch fe.Tag() {
	case "required":
		if field == "name" {
			return "Barbershop name is required"
		}
		return fmt.Sprintf("%s is required", field)
	case "min":
		if field == "name" {
			return "Barbershop name is required"
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "hhmm":
		return fmt.Sprintf("%s must be a 24-hour time in HH:MM format", field)
	case "color_hex":
		return fmt.Sprintf("%s must be a hex color like #RGB or #RRGGBB", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation for %s", field, fe.Tag())
	}
}

// fieldPath は先頭の構造体名を除いたフィールドパスを返す（例: theme.primary_color）。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
