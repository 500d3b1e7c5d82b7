package sso

import (
	"context"
	"net/url"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-identity"
)

// SessionService is the slice of the identity session layer the
// authenticator needs: minting one-time grants after a provider callback
// and revoking refresh tokens on provider logout.
type SessionService interface {
	IssueSSOGrant(ctx context.Context, user *identity.User, provider string) (*identity.AuthToken, error)
	LookupRefresh(ctx context.Context, refreshValue string) (*identity.AuthToken, error)
	RevokeRefreshByID(ctx context.Context, id uuid.UUID) error
}

// Resolver maps provider claims onto internal users.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, in identity.ResolveInput) (*identity.User, bool, error)
}

// CallbackResult is the outcome of a provider callback. RedirectURL points
// the client at the platform's afterAuthenticationUrl; on success it
// carries the one-time grant code, on failure a coarse status.
type CallbackResult struct {
	RedirectURL string
	UserID      string
	Created     bool
	Code        string
}

// Authenticator drives the authorization-code flows for every configured
// connection: building authorization redirects, completing callbacks, and
// provider-initiated logout.
type Authenticator struct {
	connections ConnectionStore
	states      StateStore
	sessions    SessionService
	resolver    Resolver
	config      identity.Config
	logger      identity.Logger

	// newClient is swapped in tests.
	newClient func(*Connection) (ProtocolClient, error)
}

// NewAuthenticator wires the SSO flows over their collaborators.
func NewAuthenticator(connections ConnectionStore, states StateStore, sessions SessionService, resolver Resolver, cfg identity.Config) *Authenticator {
	return &Authenticator{
		connections: connections,
		states:      states,
		sessions:    sessions,
		resolver:    resolver,
		config:      cfg,
		logger:      identity.DefaultLogger(),
		newClient:   NewClient,
	}
}

// WithLogger overrides the logger.
func (a *Authenticator) WithLogger(logger identity.Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// BuildAuthorizationURL starts a login against a provider. The state value
// is a server-side token; nothing about the pending flow travels in the
// redirect besides the opaque state and, when PKCE is on, the challenge.
func (a *Authenticator) BuildAuthorizationURL(ctx context.Context, provider string) (string, error) {
	conn, err := a.connections.GetConnection(provider)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryNotFound, "no connection for provider").
			WithMetadata(map[string]any{"provider": provider})
	}

	client, err := a.newClient(conn)
	if err != nil {
		return "", err
	}

	reference := map[string]any{"provider": provider}

	var opts []oauth2.AuthCodeOption
	if conn.UsePKCE {
		verifier := oauth2.GenerateVerifier()
		reference["codeVerifier"] = verifier
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	state, err := a.states.Issue(ctx, identity.TokenOAuthLoginState, nil, reference, StateTTL)
	if err != nil {
		return "", err
	}

	return client.AuthCodeURL(state.Value, opts...), nil
}

// HandleCallback completes a login callback. The state is consumed before
// anything else; an unknown or replayed state aborts the flow without ever
// contacting the provider. On failures past connection lookup the returned
// result still carries a redirect toward afterAuthenticationUrl with a
// coarse status, so the HTTP layer can send the browser somewhere sane.
func (a *Authenticator) HandleCallback(ctx context.Context, provider, code, stateValue string) (*CallbackResult, error) {
	state, err := a.states.ConsumeOnce(ctx, identity.TokenOAuthLoginState, stateValue)
	if err != nil {
		a.logger.Warn("sso callback with unusable state for %s: %v", provider, err)
		return nil, ErrInvalidState.Clone()
	}

	if state.RefString("provider") != provider {
		return nil, ErrInvalidState.Clone().
			WithMetadata(map[string]any{"provider": provider})
	}

	conn, err := a.connections.GetConnection(provider)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryNotFound, "no connection for provider").
			WithMetadata(map[string]any{"provider": provider})
	}

	result, err := a.completeCallback(ctx, conn, provider, code, state)
	if err != nil {
		return &CallbackResult{RedirectURL: a.failureRedirect(conn, err)}, err
	}
	return result, nil
}

func (a *Authenticator) completeCallback(ctx context.Context, conn *Connection, provider, code string, state *identity.AuthToken) (*CallbackResult, error) {
	client, err := a.newClient(conn)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if verifier := state.RefString("codeVerifier"); verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	auth, err := client.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, err
	}

	user, created, err := a.resolver.ResolveOrCreate(ctx, identity.ResolveInput{
		Provider:       provider,
		Claims:         auth.Claims,
		Mapping:        claimMapping(conn),
		ProviderTokens: auth.ProviderTokens(),
	})
	if err != nil {
		return nil, err
	}

	grant, err := a.sessions.IssueSSOGrant(ctx, user, provider)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{
		RedirectURL: appendQuery(conn.AfterAuthenticationURL, map[string]string{"code": grant.Value}),
		UserID:      user.ID.String(),
		Created:     created,
		Code:        grant.Value,
	}, nil
}

// BuildLogoutURL starts a provider-side logout for an openid connection.
// The refresh token is looked up now but revoked only when the provider
// calls back, so an abandoned logout leaves the session intact.
func (a *Authenticator) BuildLogoutURL(ctx context.Context, provider, refreshValue string) (string, error) {
	conn, err := a.connections.GetConnection(provider)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryNotFound, "no connection for provider").
			WithMetadata(map[string]any{"provider": provider})
	}

	if !conn.SupportsLogout() {
		return "", ErrLogoutUnsupported.Clone().
			WithMetadata(map[string]any{"provider": provider})
	}

	refresh, err := a.sessions.LookupRefresh(ctx, refreshValue)
	if err != nil {
		return "", err
	}

	reference := map[string]any{
		"provider": provider,
		"data": map[string]any{
			"refreshTokenId": refresh.ID.String(),
		},
	}
	if conn.AfterLogoutURL != "" {
		reference["afterLogoutUrl"] = conn.AfterLogoutURL
	}

	state, err := a.states.Issue(ctx, identity.TokenOAuthLogoutState, refresh.UserID, reference, StateTTL)
	if err != nil {
		return "", err
	}

	resolved := conn.resolved()
	return appendQuery(resolved.EndSessionURL, map[string]string{
		"state":                    state.Value,
		"post_logout_redirect_uri": conn.RedirectURL,
	}), nil
}

// HandleLogoutCallback finishes a provider logout: the state is consumed,
// then the refresh token it references is revoked. It returns the
// afterLogoutUrl recorded when the logout started, when one was configured.
func (a *Authenticator) HandleLogoutCallback(ctx context.Context, stateValue string) (string, error) {
	state, err := a.states.ConsumeOnce(ctx, identity.TokenOAuthLogoutState, stateValue)
	if err != nil {
		return "", ErrInvalidState.Clone()
	}

	data, _ := state.Reference["data"].(map[string]any)
	rawID, _ := data["refreshTokenId"].(string)
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err == nil {
			if err := a.sessions.RevokeRefreshByID(ctx, id); err != nil {
				a.logger.Warn("failed to revoke refresh token after provider logout: %v", err)
			}
		}
	}

	return state.RefString("afterLogoutUrl"), nil
}

// failureRedirect sends the browser back to the platform with a coarse
// status. Full error details are only exposed outside live environments.
func (a *Authenticator) failureRedirect(conn *Connection, err error) string {
	status := "configError"
	var rich *errors.Error
	if errors.As(err, &rich) && rich.Code >= 500 {
		status = "serverError"
	}

	params := map[string]string{"status": status}
	if !identity.IsLive(a.config) {
		params["error"] = err.Error()
	}

	return appendQuery(conn.AfterAuthenticationURL, params)
}

func claimMapping(conn *Connection) identity.ClaimMapping {
	resolved := conn.resolved()
	if len(resolved.ClaimMapping) == 0 {
		return nil
	}

	mapping := identity.ClaimMapping{}
	for claim, attr := range resolved.ClaimMapping {
		mapping[claim] = attr
	}
	return mapping
}

func appendQuery(rawURL string, params map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
