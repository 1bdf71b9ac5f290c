package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"070123456":       "+38970123456",
		"070 123 456":     "+38970123456",
		"38970123456":     "+38970123456",
		"+389 70 123 456": "+38970123456",
		"4915112345678":   "+4915112345678",
		"":                "",
		"abc":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestValidateSignup(t *testing.T) {
	valid := SignupInput{
		Email:           "a@b.com",
		Phone:           "070123456",
		Password:        "Abcdef1!",
		ConfirmPassword: "Abcdef1!",
	}
	require.Nil(t, validateSignup(valid))

	withName := valid
	withName.Name = "Ana Marija"
	assert.Nil(t, validateSignup(withName))

	upperEmail := valid
	upperEmail.Email = " A@B.COM "
	assert.Nil(t, validateSignup(upperEmail))

	spacedPhone := valid
	spacedPhone.Phone = "070 123 456"
	assert.Nil(t, validateSignup(spacedPhone))

	bad := []struct {
		name   string
		mutate func(*SignupInput)
		want   string
	}{
		{"email", func(in *SignupInput) { in.Email = "not-an-email" }, "email"},
		{"phone", func(in *SignupInput) { in.Phone = "70123456" }, "phone"},
		{"short", func(in *SignupInput) { in.Password, in.ConfirmPassword = "Ab1!", "Ab1!" }, "at least 8"},
		{"no upper", func(in *SignupInput) { in.Password, in.ConfirmPassword = "abcdef1!", "abcdef1!" }, "uppercase"},
		{"no digit", func(in *SignupInput) { in.Password, in.ConfirmPassword = "Abcdefg!", "Abcdefg!" }, "digit"},
		{"no symbol", func(in *SignupInput) { in.Password, in.ConfirmPassword = "Abcdefg1", "Abcdefg1" }, "symbol"},
		{"too long", func(in *SignupInput) {
			in.Password = "Abcdef1!" + strings.Repeat("x", 65)
			in.ConfirmPassword = in.Password
		}, "at most 72"},
		{"mismatch", func(in *SignupInput) { in.ConfirmPassword = "Abcdef1?" }, "do not match"},
		{"name digits", func(in *SignupInput) { in.Name = "R2D2" }, "name"},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			err := validateSignup(in)
			require.NotNil(t, err)
			assert.Equal(t, KindValidation, err.Kind)
			assert.Contains(t, err.Message, tc.want)
		})
	}
}

func TestValidateReset(t *testing.T) {
	assert.Nil(t, validateReset(ResetInput{Token: "t", Password: "Abcdef1!", ConfirmPassword: "Abcdef1!"}))

	err := validateReset(ResetInput{Password: "weak", ConfirmPassword: "weak"})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "token")
	assert.Contains(t, err.Message, "uppercase")
}
