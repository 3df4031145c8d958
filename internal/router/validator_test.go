package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campusnotes/internal/errors"
)

type signupPayload struct {
	Email    string `json:"email" validate:"required,email,institution_email"`
	Password string `json:"password" validate:"required,min=8"`
	Confirm  string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher"`
}

func TestCustomValidator_Valid(t *testing.T) {
	v := NewValidator([]string{"mictech.edu.in"})
	err := v.Validate(&signupPayload{Email: "a@mictech.edu.in", Password: "password1", Confirm: "password1"})
	assert.NoError(t, err)
}

func TestCustomValidator_CollectsAllFields(t *testing.T) {
	v := NewValidator([]string{"mictech.edu.in"})

	err := v.Validate(&signupPayload{Email: "a@gmail.com", Password: "short", Confirm: "other", Role: "admin"})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)

	got := map[string]string{}
	for _, f := range ve.Fields {
		got[f.Field] = f.Message
	}
	assert.Equal(t, map[string]string{
		"email":           "must be an institution email address",
		"password":        "must be at least 8 characters",
		"confirmPassword": "does not match",
		"role":            "must be one of: student teacher",
	}, got)
}

type passwordPayload struct {
	Password string `json:"password" validate:"required,min=8,max=72,bcrypt_len"`
}

func TestCustomValidator_PasswordByteLimit(t *testing.T) {
	v := NewValidator(nil)

	assert.NoError(t, v.Validate(&passwordPayload{Password: strings.Repeat("é", 36)}))

	// 40 characters pass max=72 but encode to 80 bytes
	err := v.Validate(&passwordPayload{Password: strings.Repeat("é", 40)})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "password", ve.Fields[0].Field)
	assert.Equal(t, "must be at most 72 bytes", ve.Fields[0].Message)
}

func TestCustomValidator_Required(t *testing.T) {
	v := NewValidator(nil)

	err := v.Validate(&signupPayload{})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 3)
	for _, f := range ve.Fields {
		assert.Equal(t, "is required", f.Message)
	}
}
