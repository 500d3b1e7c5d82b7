package identity

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials  = "auth_invalid_credentials"
	TextCodeTokenExpired        = "auth_token_expired"
	TextCodeTokenNotFound       = "auth_token_not_found"
	TextCodeTokenAlreadyUsed    = "auth_token_already_used"
	TextCodeForbidden           = "auth_forbidden"
	TextCodeSignatureInvalid    = "auth_signature_invalid"
	TextCodeTokenMalformed      = "auth_token_malformed"
	TextCodeRefreshNotAllowed   = "auth_refresh_not_allowed"
	TextCodeImpersonationDenied = "auth_impersonation_denied"
)

// ErrInvalidCredentials is the single error returned for every local login
// failure. Missing user, missing credential binding, and hash mismatch are
// indistinguishable from the outside.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeForbidden)

// ErrTokenExpired is returned when a token exists but its expiration date has passed.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeForbidden)

// ErrTokenNotFound is returned when no token matches the given type and value.
var ErrTokenNotFound = errors.New("token not found", errors.CategoryAuth).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(errors.CodeForbidden)

// ErrTokenAlreadyUsed is returned when a single-use token is redeemed twice.
var ErrTokenAlreadyUsed = errors.New("token already used", errors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(http.StatusUnprocessableEntity)

// ErrForbidden covers permission and ownership violations.
var ErrForbidden = errors.New("forbidden", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrRefreshNotAllowed is returned when a refresh token is missing, expired,
// or presented from an incompatible client.
var ErrRefreshNotAllowed = errors.New("cannot refresh this token", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshNotAllowed).
	WithCode(errors.CodeForbidden)

// ErrImpersonationDenied is returned when the caller may not assume the
// target identity.
var ErrImpersonationDenied = errors.New("impersonation not allowed", errors.CategoryAuthz).
	WithTextCode(TextCodeImpersonationDenied).
	WithCode(errors.CodeForbidden)

// ErrSignatureInvalid is returned when an access token fails signature verification.
var ErrSignatureInvalid = errors.New("invalid token signature", errors.CategoryAuth).
	WithTextCode(TextCodeSignatureInvalid).
	WithCode(errors.CodeForbidden)

// ErrTokenMalformed is returned when a token cannot be parsed at all.
var ErrTokenMalformed = errors.New("malformed token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeForbidden)

// PermImpersonate is the permission consulted before user-mode impersonation.
const PermImpersonate = "auth:impersonate"

// IsTextCode reports whether err carries the given text code. Sentinels are
// cloned before metadata is attached, so identity comparison is not enough.
func IsTextCode(err error, code string) bool {
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}
