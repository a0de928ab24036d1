package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	// Plain decimal notation only: no sign, exponent or grouping.
	amountRe = regexp.MustCompile(`^[0-9]{1,30}(\.[0-9]{1,36})?$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("wdr_amount", validateAmount)
		_ = v.RegisterValidation("signing_strategy", validateSigningStrategy)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateAmount accepts a strictly positive plain decimal.
func validateAmount(fl validator.FieldLevel) bool {
	return isPositiveAmount(fl.Field().String())
}

func isPositiveAmount(s string) bool {
	if !amountRe.MatchString(s) {
		return false
	}
	d, err := decimal.NewFromString(s)
	return err == nil && d.Sign() > 0
}

func validateSigningStrategy(fl validator.FieldLevel) bool {
	_, ok := domain.ParseSigningStrategy(fl.Field().String())
	return ok
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer. The field tag
// `sanitize:"trim"` only trims; `sanitize:"-"` leaves the field untouched.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		mode := rt.Field(i).Tag.Get("sanitize")
		if mode == "-" {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String(), mode))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String(), mode))
			}
		}
	}
}

func sanitize(s, mode string) string {
	s = strings.TrimSpace(s)
	if mode == "trim" {
		return s
	}
	return html.EscapeString(s)
}
