package sso

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidState        = "sso_invalid_state"
	TextCodeInvalidConnection   = "sso_invalid_connection"
	TextCodeProviderUnavailable = "sso_provider_unavailable"
	TextCodeExchangeFailed      = "sso_exchange_failed"
	TextCodeUserInfoFailed      = "sso_user_info_failed"
	TextCodeLogoutUnsupported   = "sso_logout_unsupported"
)

// ErrInvalidState is returned when a callback presents a state value we
// never issued, or one that was already consumed. No code exchange is
// attempted in that case.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeForbidden)

// ErrInvalidConnection is returned when a connection configuration cannot
// be used as declared.
var ErrInvalidConnection = errors.New("invalid connection configuration", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidConnection).
	WithCode(http.StatusUnprocessableEntity)

// ErrProviderUnavailable is returned when the provider cannot be reached or
// answers with a server error.
var ErrProviderUnavailable = errors.New("identity provider unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrExchangeFailed is returned when the provider rejects the authorization
// code exchange.
var ErrExchangeFailed = errors.New("authorization code exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeExchangeFailed).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when the provider profile fetch fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFailed).
	WithCode(errors.CodeUnauthorized)

// ErrLogoutUnsupported is returned when a logout redirect is requested for
// a connection that cannot provide one.
var ErrLogoutUnsupported = errors.New("connection does not support logout", errors.CategoryValidation).
	WithTextCode(TextCodeLogoutUnsupported).
	WithCode(http.StatusUnprocessableEntity)
