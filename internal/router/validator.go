package router

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
)

// CustomValidator wraps validator for Echo and reports failures as
// *errors.ValidationError keyed by JSON field name.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator builds the request validator. The institution_email tag
// accepts addresses whose domain is in allowedDomains; bcrypt_len bounds a
// password by bytes rather than characters.
func NewValidator(allowedDomains []string) *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("institution_email", func(fl validator.FieldLevel) bool {
		return auth.EmailDomainAllowed(strings.TrimSpace(fl.Field().String()), allowedDomains)
	})
	_ = v.RegisterValidation("bcrypt_len", func(fl validator.FieldLevel) bool {
		return auth.PasswordFits(fl.Field().String())
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &apperrors.ValidationError{Fields: make([]apperrors.FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, apperrors.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "institution_email":
		return "must be an institution email address"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "bcrypt_len":
		return "must be at most " + strconv.Itoa(auth.MaxPasswordBytes) + " bytes"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "eqfield":
		return "does not match"
	default:
		return "is invalid"
	}
}
