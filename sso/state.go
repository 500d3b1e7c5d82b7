package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-identity"
)

// StateTTL bounds how long an authorization redirect stays redeemable.
const StateTTL = time.Hour

// StateStore persists oauth state server-side. The identity token store
// satisfies it; state values live in the same table as every other
// ephemeral token and are consumed atomically.
type StateStore interface {
	Issue(ctx context.Context, typ identity.TokenType, userID *uuid.UUID, reference map[string]any, ttl time.Duration) (*identity.AuthToken, error)
	ConsumeOnce(ctx context.Context, typ identity.TokenType, value string) (*identity.AuthToken, error)
}

// GenerateState produces an unguessable state value.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
