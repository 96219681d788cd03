package service

import (
	"github.com/cockroachdb/errors"

	"identity-core/internal/autherr"
	mfadomain "identity-core/internal/mfa/domain"
	principaldomain "identity-core/internal/principal/domain"
)

// Errors outside the login taxonomy. They describe caller mistakes on administrative and
// enrollment operations and pass the boundary unchanged; the handler maps them to gRPC codes.
var (
	ErrInvalidPrincipalID = errors.New("principal id is required")
	ErrWeakSecret         = errors.New("secret does not meet the password policy")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidStatus      = errors.New("invalid account status")
)

var passThroughErrs = []error{
	ErrInvalidPrincipalID,
	ErrWeakSecret,
	ErrPrincipalNotFound,
	ErrInvalidStatus,
	principaldomain.ErrPrincipalExists,
	mfadomain.ErrEnrollmentExists,
	mfadomain.ErrEnrollmentNotFound,
	mfadomain.ErrInvalidFactor,
}

func passThrough(err error) bool {
	for _, e := range passThroughErrs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// reason is the audit reason recorded for err.
func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, principaldomain.ErrPrincipalExists), errors.Is(err, mfadomain.ErrEnrollmentExists):
		return "already_exists"
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, mfadomain.ErrEnrollmentNotFound):
		return "not_found"
	case passThrough(err):
		return "invalid_argument"
	}
	return string(autherr.KindOf(autherr.Boundary(err)))
}

// weakSecret wraps ErrWeakSecret so both errors.Is implementations see it.
func weakSecret(rule string) error {
	return errors.Wrap(ErrWeakSecret, rule)
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return weakSecret("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return weakSecret("password must contain at least one uppercase letter")
	case !hasLower:
		return weakSecret("password must contain at least one lowercase letter")
	case !hasNumber:
		return weakSecret("password must contain at least one number")
	case !hasSymbol:
		return weakSecret("password must contain at least one symbol")
	}
	return nil
}
