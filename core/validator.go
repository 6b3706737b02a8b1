package core

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterValidation("nospace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})

	// ':' joins the two handles of a direct conversation key.
	validate.RegisterValidation("handlechars", func(fl validator.FieldLevel) bool {
		return !strings.ContainsRune(fl.Field().String(), ':')
	})
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string `json:"username" validate:"required,nospace,handlechars,min=2,max=20"`
	Password string `json:"password" validate:"required,min=3"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

// registrationRules lists the checks in the order their messages take
// precedence.
var registrationRules = []struct {
	field string
	tags  []string
	err   *ValidationError
}{
	{"", []string{"required"}, ErrMissingFields},
	{"Username", []string{"nospace"}, ErrHandleWhitespace},
	{"Username", []string{"handlechars"}, ErrHandleCharacters},
	{"Username", []string{"min", "max"}, ErrHandleLength},
	{"Password", []string{"min"}, ErrPasswordLength},
	{"Confirm", []string{"eqfield"}, ErrPasswordMismatch},
}

// Validate checks the form and returns the ValidationError of the first
// failing rule. Username is expected to be normalized already.
func (in *RegisterInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, rule := range registrationRules {
		for _, fe := range fieldErrs {
			if rule.field != "" && fe.StructField() != rule.field {
				continue
			}
			for _, tag := range rule.tags {
				if fe.Tag() == tag {
					return rule.err
				}
			}
		}
	}
	return ErrMissingFields
}
