package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// TokenStore manages the lifecycle of single-use and expiring AuthTokens.
type TokenStore struct {
	tokens AuthTokens
	clock  Clock
	logger Logger
}

// NewTokenStore creates a store over the tenant's AuthTokens repository.
func NewTokenStore(tokens AuthTokens) *TokenStore {
	return &TokenStore{
		tokens: tokens,
		clock:  systemClock{},
		logger: defLogger{},
	}
}

// WithClock overrides the time source.
func (s *TokenStore) WithClock(clock Clock) *TokenStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLogger overrides the logger.
func (s *TokenStore) WithLogger(logger Logger) *TokenStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Issue persists a new token with a random opaque value, unique within its
// type namespace.
func (s *TokenStore) Issue(ctx context.Context, typ TokenType, userID *uuid.UUID, reference map[string]any, ttl time.Duration) (*AuthToken, error) {
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive", errors.CategoryBadInput)
	}

	value, err := OpaqueValue()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate token value")
	}

	token := &AuthToken{
		Type:      typ,
		Value:     value,
		UserID:    userID,
		Reference: reference,
		ExpiresAt: s.clock.Now().Add(ttl),
	}

	created, err := s.tokens.Create(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist token")
	}

	return created, nil
}

// FindValid returns the token when it exists and has not expired. It
// distinguishes "does not exist" (ErrTokenNotFound) from "exists but
// expired" (ErrTokenExpired); expired rows are lazily deleted.
func (s *TokenStore) FindValid(ctx context.Context, typ TokenType, value string) (*AuthToken, error) {
	token, err := s.tokens.GetByTypeAndValue(ctx, typ, value)
	if err != nil {
		if repository.IsRecordNotFound(err) || isNoRows(err) {
			return nil, ErrTokenNotFound.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up token")
	}

	if token.Expired(s.clock.Now()) {
		if _, err := s.tokens.ConsumeByTypeAndValue(ctx, typ, value); err != nil {
			s.logger.Warn("failed to delete expired token: %v", err)
		}
		return nil, ErrTokenExpired.Clone()
	}

	return token, nil
}

// ConsumeOnce atomically deletes a delete-on-use token and returns it.
// Two racing consumers get exactly one token and one ErrTokenNotFound.
func (s *TokenStore) ConsumeOnce(ctx context.Context, typ TokenType, value string) (*AuthToken, error) {
	token, err := s.tokens.ConsumeByTypeAndValue(ctx, typ, value)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume token")
	}

	if token == nil {
		return nil, ErrTokenNotFound.Clone()
	}

	if token.Expired(s.clock.Now()) {
		return nil, ErrTokenExpired.Clone()
	}

	return token, nil
}

// Check atomically flags a verification token as checked. The first call
// reports consumed=true; later calls return the token with consumed=false
// so callers can report "already checked" without re-firing side effects.
func (s *TokenStore) Check(ctx context.Context, value string) (token *AuthToken, consumed bool, err error) {
	token, err = s.FindValid(ctx, TokenCheck, value)
	if err != nil {
		return nil, false, err
	}

	consumed, err = s.tokens.MarkChecked(ctx, token.ID)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to mark token checked")
	}

	if consumed {
		token.Checked = true
	}

	return token, consumed, nil
}

// PurgeExpired removes every expired token for the tenant.
func (s *TokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.clock.Now())
}

// OpaqueValue produces a URL-safe random token value.
func OpaqueValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
