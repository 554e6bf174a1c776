package utils

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phoneRe      = regexp.MustCompile(`^0\d{9}$`)
	nationalIDRe = regexp.MustCompile(`^\d{10}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("national_id", func(fl validator.FieldLevel) bool {
		return nationalIDRe.MatchString(fl.Field().String())
	})
	return v
}

var tagMessages = map[string]string{
	"required":    "هذا الحقل مطلوب",
	"max":         "القيمة أطول من المسموح",
	"min":         "القيمة أقصر من المسموح",
	"gte":         "القيمة يجب ألا تكون سالبة",
	"oneof":       "قيمة غير صالحة",
	"phone":       "رقم الجوال يجب أن يبدأ بـ0 ويتكون من 10 أرقام",
	"national_id": "رقم الهوية يجب أن يتكون من 10 أرقام",
}

// ValidationErrors maps request fields to user-facing messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless one is already present.
func (v ValidationErrors) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// OrNil returns nil when nothing was recorded.
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) ValidationErrors {
	return ValidationErrors{field: msg}
}

// ValidateStruct runs validator tags on s and converts failures into ValidationErrors.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := ValidationErrors{}
	for _, fe := range ve {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "قيمة غير صالحة"
		}
		out.Add(fe.Field(), msg)
	}
	return out
}

// IsValidPhone reports whether phone matches the local mobile format.
func IsValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}
