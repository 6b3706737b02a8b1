package n14

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

func init() {

	validate = validator.New(validator.WithRequiredStructEnabled())
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// lowercase first letter of the field
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.ToLower(field.Name)
	})

	validate.RegisterTranslation("required", enTrans, func(ut ut.Translator) error {
		return ut.Add("required", "{0} is a required field", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("required", fieldName(fe))
		return t
	})

	validate.RegisterTranslation("oneof", enTrans, func(ut ut.Translator) error {
		return ut.Add("oneof", "{0} must be one of [{1}]", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("oneof", fieldName(fe), fe.Param())
		return t
	})

	validate.RegisterTranslation("min", enTrans, func(ut ut.Translator) error {
		return ut.Add("min", "{0} must be at least {1}", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("min", fieldName(fe), fe.Param())
		return t
	})

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})

	validate.RegisterTranslation("port", enTrans, func(ut ut.Translator) error {
		return ut.Add("port", "{0} must be a valid port number", true)

	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("port", fieldName(fe))
		return t
	})

	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Config)
		switch c.Storage.Driver {
		case SQLiteDriver:
			if c.SQLite.File == "" {
				sl.ReportError(c.SQLite.File, "sqlite.file", "File", "required", "")
			}
		case RedisDriver:
			if c.Redis.Addr == "" {
				sl.ReportError(c.Redis.Addr, "redis.addr", "Addr", "required", "")
			}
		}
		if (c.TLS.Crt == "") != (c.TLS.Key == "") {
			sl.ReportError(c.TLS.Key, "tls.key", "Key", "tlspair", "")
		}
	}, Config{})

	validate.RegisterTranslation("tlspair", enTrans, func(ut ut.Translator) error {
		return ut.Add("tlspair", "tls.crt and tls.key must be set together", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("tlspair")
		return t
	})
}

// fieldName is the dotted config key of the failing field.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
