package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// DefaultRefreshTokenTTL is used when the config oracle supplies no policy.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// SSOGrantTTL bounds the window between a provider callback and the
	// client exchanging the one-time code for a session.
	SSOGrantTTL = 5 * time.Minute
)

// TokenPair is what a client holds after establishing a session.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ImpersonationRequest asks for an access token minted on behalf of another
// user.
type ImpersonationRequest struct {
	TargetUserID string
	// System marks a host-initiated impersonation: the caller is trusted
	// infrastructure, no permission or membership check runs, and Roles and
	// OrgPermissions are taken as given.
	System         bool
	Roles          []string
	OrgPermissions []string
	TTL            time.Duration
}

// SessionOrchestrator composes the codec, token store, and credential
// verifier into the session lifecycle: login, refresh, logout, SSO code
// exchange, and impersonation.
type SessionOrchestrator struct {
	repo        RepositoryManager
	codec       *TokenCodec
	tokens      *TokenStore
	credentials *CredentialVerifier
	config      Config
	perms       PermissionOracle
	activity    ActivitySink
	logger      Logger
	clock       Clock
}

// NewSessionOrchestrator wires the orchestrator over its collaborators.
func NewSessionOrchestrator(repo RepositoryManager, codec *TokenCodec, tokens *TokenStore, credentials *CredentialVerifier, cfg Config) *SessionOrchestrator {
	return &SessionOrchestrator{
		repo:        repo,
		codec:       codec,
		tokens:      tokens,
		credentials: credentials,
		config:      cfg,
		activity:    noopActivitySink{},
		logger:      defLogger{},
		clock:       systemClock{},
	}
}

// WithPermissionOracle enables permission-based impersonation checks.
func (o *SessionOrchestrator) WithPermissionOracle(perms PermissionOracle) *SessionOrchestrator {
	o.perms = perms
	return o
}

// WithActivitySink sets the sink used for session audit events.
func (o *SessionOrchestrator) WithActivitySink(sink ActivitySink) *SessionOrchestrator {
	o.activity = normalizeActivitySink(sink)
	return o
}

// WithLogger overrides the logger.
func (o *SessionOrchestrator) WithLogger(logger Logger) *SessionOrchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithClock overrides the time source.
func (o *SessionOrchestrator) WithClock(clock Clock) *SessionOrchestrator {
	if clock != nil {
		o.clock = clock
	}
	return o
}

// Login verifies local credentials and establishes a session. The refresh
// token remembers the client's user agent so later refreshes can be bound
// to the same browser lineage.
func (o *SessionOrchestrator) Login(ctx context.Context, username, password, userAgent string) (*TokenPair, error) {
	user, err := o.credentials.Login(ctx, username, password)
	if err != nil {
		emitActivity(ctx, o.activity, o.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "anonymous"},
			Metadata: map[string]any{
				"username": username,
			},
		})
		return nil, err
	}

	pair, err := o.mintPair(ctx, user, o.clock.Now(), userAgent)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, o.activity, o.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return pair, nil
}

// Refresh mints a fresh access token against a stored refresh token. The
// presenting user agent must be compatible with the one that created the
// session: same browser family at the same or newer version, or the exact
// same string when either side cannot be parsed.
func (o *SessionOrchestrator) Refresh(ctx context.Context, refreshValue, userAgent string) (*TokenPair, error) {
	token, err := o.tokens.FindValid(ctx, TokenRefresh, refreshValue)
	if err != nil {
		if IsTextCode(err, TextCodeTokenNotFound) || IsTextCode(err, TextCodeTokenExpired) {
			return nil, ErrRefreshNotAllowed.Clone()
		}
		return nil, err
	}

	if !CompatibleUserAgents(token.RefString("userAgent"), userAgent) {
		o.logger.Warn("refresh rejected: user agent mismatch for token %s", token.ID)
		return nil, ErrRefreshNotAllowed.Clone()
	}

	if token.UserID == nil {
		return nil, ErrRefreshNotAllowed.Clone()
	}

	user, err := o.repo.Users().GetByID(ctx, token.UserID.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session user")
	}

	access, err := o.codec.CreateAccessToken(ctx, user, ExtraClaims{
		LoggedAt: tokenLoggedAt(token, o.clock.Now()),
	}, 0)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, o.activity, o.logger, ActivityEvent{
		EventType: ActivityEventRefresh,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshValue,
		UserID:       user.ID.String(),
		ExpiresAt:    token.ExpiresAt,
	}, nil
}

// Logout revokes a refresh token. Revoking a token that is already gone is
// not an error.
func (o *SessionOrchestrator) Logout(ctx context.Context, refreshValue string) error {
	token, err := o.tokens.ConsumeOnce(ctx, TokenRefresh, refreshValue)
	if err != nil {
		if IsTextCode(err, TextCodeTokenNotFound) || IsTextCode(err, TextCodeTokenExpired) {
			return nil
		}
		return err
	}

	event := ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{Type: "user"},
	}
	if token.UserID != nil {
		event.Actor.ID = token.UserID.String()
		event.UserID = token.UserID.String()
	}
	emitActivity(ctx, o.activity, o.logger, event)

	return nil
}

// LookupRefresh returns a live refresh token by value without consuming it.
func (o *SessionOrchestrator) LookupRefresh(ctx context.Context, refreshValue string) (*AuthToken, error) {
	return o.tokens.FindValid(ctx, TokenRefresh, refreshValue)
}

// RevokeRefreshByID deletes a refresh token by id. Used by flows that hold
// a token reference rather than the opaque value.
func (o *SessionOrchestrator) RevokeRefreshByID(ctx context.Context, id uuid.UUID) error {
	return o.repo.AuthTokens().DeleteByTokenID(ctx, id)
}

// IssueSSOGrant creates the one-time code handed back to the client after a
// successful provider callback. The client exchanges it for a session
// through ExchangeCode within SSOGrantTTL.
func (o *SessionOrchestrator) IssueSSOGrant(ctx context.Context, user *User, provider string) (*AuthToken, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	token, err := o.tokens.Issue(ctx, TokenSSOLogin, &user.ID, map[string]any{
		"provider": provider,
	}, SSOGrantTTL)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, o.activity, o.logger, ActivityEvent{
		EventType: ActivityEventSSOLogin,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"provider": provider,
		},
	})

	return token, nil
}

// ExchangeCode redeems a one-time SSO grant for a session. The grant is
// consumed atomically: a second presenter learns the code was already used,
// an expired grant is refused outright.
func (o *SessionOrchestrator) ExchangeCode(ctx context.Context, code, userAgent string) (*TokenPair, error) {
	token, err := o.tokens.ConsumeOnce(ctx, TokenSSOLogin, code)
	if err != nil {
		if IsTextCode(err, TextCodeTokenNotFound) {
			return nil, errors.New("code already used", errors.CategoryConflict).
				WithTextCode(TextCodeTokenAlreadyUsed).
				WithCode(http.StatusUnprocessableEntity)
		}
		return nil, err
	}

	if token.UserID == nil {
		return nil, errors.New("sso grant is not associated with a user", errors.CategoryInternal)
	}

	user, err := o.repo.Users().GetByID(ctx, token.UserID.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for sso grant")
	}

	return o.mintPair(ctx, user, o.clock.Now(), userAgent)
}

// Impersonate mints an access token for the target identity on behalf of
// the caller. In user mode the caller needs either the impersonation
// permission or membership in the target organization; the minted roles are
// the caller's roles inside that organization while orgRoles preserves the
// target's own. System mode trusts the host and takes roles as given.
func (o *SessionOrchestrator) Impersonate(ctx context.Context, source *AccessClaims, req ImpersonationRequest) (string, error) {
	target, err := o.repo.Users().GetByID(ctx, req.TargetUserID)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to load impersonation target").
			WithMetadata(map[string]any{"target": req.TargetUserID})
	}

	if req.System {
		return o.mintImpersonation(ctx, source, target, req, systemImpersonationRoles(req, target))
	}

	if source == nil || source.UserID() == "" {
		return "", ErrImpersonationDenied.Clone()
	}

	caller, err := o.repo.Users().GetByID(ctx, source.UserID())
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to load impersonation caller")
	}

	if membership, ok := caller.MemberOf(target.ID.String()); ok && target.HasRole(RoleOrganization) {
		return o.mintImpersonation(ctx, source, target, req, membership.Roles)
	}

	if o.perms != nil {
		allowed, err := o.perms.HasPermission(ctx, caller.Roles, PermImpersonate)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to evaluate impersonation permission")
		}
		if allowed {
			return o.mintImpersonation(ctx, source, target, req, target.Roles)
		}
	}

	emitActivity(ctx, o.activity, o.logger, ActivityEvent{
		EventType: ActivityEventImpersonationFailure,
		Actor:     ActorRef{ID: source.UserID(), Type: "user"},
		UserID:    target.ID.String(),
	})

	return "", ErrImpersonationDenied.Clone()
}

func (o *SessionOrchestrator) mintImpersonation(ctx context.Context, source *AccessClaims, target *User, req ImpersonationRequest, roles []string) (string, error) {
	sourceID := ""
	sourceType := "system"
	if source != nil {
		sourceID = source.UserID()
		sourceType = "user"
	}

	view := *target
	view.Roles = append([]string(nil), roles...)

	access, err := o.codec.CreateAccessToken(ctx, &view, ExtraClaims{
		LoggedAt:       o.clock.Now(),
		SourceUserID:   sourceID,
		OrgRoles:       target.Roles,
		OrgPermissions: req.OrgPermissions,
	}, req.TTL)
	if err != nil {
		return "", err
	}

	emitActivity(ctx, o.activity, o.logger, ActivityEvent{
		EventType: ActivityEventImpersonationSuccess,
		Actor:     ActorRef{ID: sourceID, Type: sourceType},
		UserID:    target.ID.String(),
		Metadata: map[string]any{
			"roles": roles,
		},
	})

	return access, nil
}

func systemImpersonationRoles(req ImpersonationRequest, target *User) []string {
	if len(req.Roles) > 0 {
		return req.Roles
	}
	return target.Roles
}

func (o *SessionOrchestrator) mintPair(ctx context.Context, user *User, loggedAt time.Time, userAgent string) (*TokenPair, error) {
	access, err := o.codec.CreateAccessToken(ctx, user, ExtraClaims{LoggedAt: loggedAt}, 0)
	if err != nil {
		return nil, err
	}

	ttl := DefaultRefreshTokenTTL
	if o.config != nil {
		if v := o.config.GetRefreshTokenTTL(); v > 0 {
			ttl = v
		}
	}

	refresh, err := o.tokens.Issue(ctx, TokenRefresh, &user.ID, map[string]any{
		"userAgent": userAgent,
		"loggedAt":  loggedAt.Unix(),
	}, ttl)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Value,
		UserID:       user.ID.String(),
		ExpiresAt:    refresh.ExpiresAt,
	}, nil
}

// tokenLoggedAt recovers the original login time stored on a refresh token.
// JSON round-trips numbers as float64.
func tokenLoggedAt(token *AuthToken, fallback time.Time) time.Time {
	if token == nil || token.Reference == nil {
		return fallback
	}

	switch v := token.Reference["loggedAt"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	}
	return fallback
}
