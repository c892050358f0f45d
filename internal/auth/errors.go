package auth

import (
	"errors"
	"fmt"
)

// Caller errors from register and login.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("insufficient permissions")
)

// ErrWeakSecret is a configuration error: the signing secret is missing or
// too short to be used.
var ErrWeakSecret = errors.New("jwt signing secret must be at least 32 bytes")

// ErrInvalidToken is the uniform external failure for token verification.
// Every verification failure below wraps it, so callers that only need
// "rejected" check errors.Is(err, ErrInvalidToken) while logging can tell
// the kinds apart.
var ErrInvalidToken = errors.New("invalid or expired token")

var (
	ErrMalformedToken    = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenExpired      = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenRevoked      = fmt.Errorf("%w: revoked", ErrInvalidToken)
	ErrPrincipalMissing  = fmt.Errorf("%w: principal missing", ErrInvalidToken)
	ErrPrincipalInactive = fmt.Errorf("%w: principal inactive", ErrInvalidToken)
)

// FailureKind names a verification failure for logs and metrics labels.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrPrincipalMissing):
		return "principal_missing"
	case errors.Is(err, ErrPrincipalInactive):
		return "principal_inactive"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
