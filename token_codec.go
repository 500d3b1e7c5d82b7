package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when the config oracle supplies no policy.
const DefaultAccessTokenTTL = time.Hour

// TokenCodec signs and verifies access tokens with the tenant's signing
// secret. The secret is looked up lazily through the SecretStore and cached
// process wide.
type TokenCodec struct {
	tenant  Tenant
	store   SecretStore
	secrets *SecretCache
	issuer  string
	ttl     time.Duration
	clock   Clock
	logger  Logger
}

// NewTokenCodec creates a codec for one tenant.
func NewTokenCodec(tenant Tenant, store SecretStore, cfg Config) *TokenCodec {
	ttl := DefaultAccessTokenTTL
	issuer := ""
	if cfg != nil {
		if v := cfg.GetAccessTokenTTL(); v > 0 {
			ttl = v
		}
		issuer = cfg.GetIssuer()
	}

	return &TokenCodec{
		tenant:  tenant,
		store:   store,
		secrets: NewSecretCache(),
		issuer:  issuer,
		ttl:     ttl,
		clock:   systemClock{},
		logger:  defLogger{},
	}
}

// WithSecretCache shares a cache between codecs.
func (c *TokenCodec) WithSecretCache(cache *SecretCache) *TokenCodec {
	if cache != nil {
		c.secrets = cache
	}
	return c
}

// WithClock overrides the time source.
func (c *TokenCodec) WithClock(clock Clock) *TokenCodec {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// WithLogger overrides the logger.
func (c *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// CreateAccessToken mints a signed token for the user, embedding roles and
// any caller supplied claims. A zero ttl uses the configured default.
func (c *TokenCodec) CreateAccessToken(ctx context.Context, user *User, extra ExtraClaims, ttl time.Duration) (string, error) {
	if user == nil {
		return "", errors.New("user is required", errors.CategoryBadInput)
	}

	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.clock.Now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:            user.ID.String(),
		Roles:          append([]string(nil), user.Roles...),
		SourceUserID:   extra.SourceUserID,
		OrgRoles:       append([]string(nil), extra.OrgRoles...),
		OrgPermissions: append([]string(nil), extra.OrgPermissions...),
	}

	if !extra.LoggedAt.IsZero() {
		claims.LoggedAt = extra.LoggedAt.Unix()
	}

	return c.SignClaims(ctx, claims)
}

// SignClaims signs arbitrary access claims with the tenant secret.
func (c *TokenCodec) SignClaims(ctx context.Context, claims *AccessClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	secret, err := c.secrets.GetOrCreate(ctx, c.tenant.Key(), c.store)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}

	return signed, nil
}

// DecodeOptions controls DecodeAccessToken behavior.
type DecodeOptions struct {
	// OnlyDecode skips signature and expiry verification. It exists for
	// provider-issued id_tokens that arrived over a trusted channel; it must
	// never be used for access-token trust decisions.
	OnlyDecode bool
}

// DecodeAccessToken verifies and parses a token, returning its claims.
func (c *TokenCodec) DecodeAccessToken(ctx context.Context, tokenString string, opts DecodeOptions) (*AccessClaims, error) {
	if opts.OnlyDecode {
		claims := &AccessClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrTokenMalformed.Clone()
		}
		return claims, nil
	}

	secret, err := c.secrets.GetOrCreate(ctx, c.tenant.Key(), c.store)
	if err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(c.clock.Now)}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("token decode: unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired.Clone()
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid.Clone()
		default:
			return nil, ErrTokenMalformed.Clone()
		}
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		c.logger.Error("TokenCodec decode could not map claims")
		return nil, ErrTokenMalformed.Clone()
	}

	return claims, nil
}
