package service

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	phonePattern  = regexp.MustCompile(`^0\d{2}\s?\d{3}\s?\d{3}$`)
	namePattern   = regexp.MustCompile(`^[\p{L} ]{3,}$`)
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	digitPattern  = regexp.MustCompile(`\d`)
	symbolPattern = regexp.MustCompile(`[-!@#$+_%^&*(),.?":{}|<>]`)
)

const (
	minPasswordLen = 8
	// bcrypt refuses longer input.
	maxPasswordLen = 72
)

// SignupInput is the raw signup form.
type SignupInput struct {
	Name            string `json:"name" form:"name"`
	Email           string `json:"email" form:"email"`
	Phone           string `json:"phone" form:"phone"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// ResetInput is the raw reset-password form.
type ResetInput struct {
	Token           string `json:"token" form:"token"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone reduces a local or international number to +389… form.
func NormalizePhone(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case strings.HasPrefix(d, "0"):
		return "+389" + d[1:]
	default:
		return "+" + d
	}
}

func validatePassword(pw, confirm string) []string {
	var problems []string
	if len(pw) < minPasswordLen {
		problems = append(problems, "password must be at least 8 characters")
	}
	if len(pw) > maxPasswordLen {
		problems = append(problems, "password must be at most 72 bytes")
	}
	if !upperPattern.MatchString(pw) {
		problems = append(problems, "password must contain an uppercase letter")
	}
	if !digitPattern.MatchString(pw) {
		problems = append(problems, "password must contain a digit")
	}
	if !symbolPattern.MatchString(pw) {
		problems = append(problems, "password must contain a symbol")
	}
	if pw != confirm {
		problems = append(problems, "passwords do not match")
	}
	return problems
}

func validateSignup(in SignupInput) *Error {
	var problems []string
	if name := strings.TrimSpace(in.Name); name != "" && !namePattern.MatchString(name) {
		problems = append(problems, "name must be at least 3 letters")
	}
	if !emailPattern.MatchString(NormalizeEmail(in.Email)) {
		problems = append(problems, "email address is not valid")
	}
	if !phonePattern.MatchString(strings.TrimSpace(in.Phone)) {
		problems = append(problems, "phone must look like 0XX XXX XXX")
	}
	problems = append(problems, validatePassword(in.Password, in.ConfirmPassword)...)
	return problemsError(problems)
}

func validateReset(in ResetInput) *Error {
	var problems []string
	if strings.TrimSpace(in.Token) == "" {
		problems = append(problems, "reset token is required")
	}
	problems = append(problems, validatePassword(in.Password, in.ConfirmPassword)...)
	return problemsError(problems)
}

func problemsError(problems []string) *Error {
	if len(problems) == 0 {
		return nil
	}
	return Validation(strings.Join(problems, "; "))
}
