package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/moodtrail/tracker/internal/errors"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
	Format   string `json:"format" validate:"omitempty,oneof=json csv"`
}

func TestStructMessagesUseJSONNames(t *testing.T) {
	cases := []struct {
		in   sample
		want string
	}{
		{sample{Password: "secret1"}, "email is required"},
		{sample{Email: "nope", Password: "secret1"}, "email must be a valid email address"},
		{sample{Email: "a@b.co", Password: "abc"}, "password must be at least 6 characters"},
		{sample{Email: "a@b.co", Password: "secret1", Format: "xml"}, "format must be one of: json, csv"},
	}
	for _, tc := range cases {
		err := Struct(tc.in)
		se := apperrors.GetServiceError(err)
		if assert.NotNil(t, se) {
			assert.Equal(t, apperrors.CodeInvalidInput, se.Code)
			assert.Equal(t, tc.want, se.Message)
		}
	}
	assert.NoError(t, Struct(sample{Email: "a@b.co", Password: "secret1", Format: "csv"}))
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("date", "2026-03-01", "datetime=2006-01-02"))
	err := Var("date", "03/01/2026", "datetime=2006-01-02")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}
