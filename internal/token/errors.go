package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is matched by every verification failure. Callers facing the
// client must not look any deeper than this.
var ErrInvalid = errors.New("invalid token")

// Reasons recorded on VerifyError.
const (
	ReasonMissing     = "missing"
	ReasonExpired     = "expired"
	ReasonSignature   = "signature"
	ReasonNotYetValid = "not_yet_valid"
	ReasonWrongUse    = "wrong_use"
	ReasonMalformed   = "malformed"
)

// VerifyError describes why a token was rejected.
type VerifyError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s token rejected (%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s token rejected (%s)", e.Kind, e.Reason)
}

func (e *VerifyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalid}
	}
	return []error{ErrInvalid, e.Err}
}

// ReasonOf extracts the rejection reason from a Verify error, or "" when err
// did not come from Verify.
func ReasonOf(err error) string {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	default:
		return ReasonMalformed
	}
}
