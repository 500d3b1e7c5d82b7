package identity_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
)

type sessionFixture struct {
	repo  identity.RepositoryManager
	codec *identity.TokenCodec
	sess  *identity.SessionOrchestrator
	clock *fakeClock
	sink  *capturingSink
}

func setupSession(t *testing.T) *sessionFixture {
	t.Helper()

	repo := setupRepos(t)
	cfg := newTestConfig()
	clock := newFakeClock(time.Now())
	sink := &capturingSink{}

	codec := identity.NewTokenCodec(testTenant, repo.Secrets(), cfg).WithClock(clock)
	store := identity.NewTokenStore(repo.AuthTokens()).WithClock(clock)
	verifier := identity.NewCredentialVerifier(repo, store, cfg)

	sess := identity.NewSessionOrchestrator(repo, codec, store, verifier, cfg).
		WithActivitySink(sink).
		WithClock(clock)

	return &sessionFixture{repo: repo, codec: codec, sess: sess, clock: clock, sink: sink}
}

type stubOracle struct {
	allowed map[string]bool
}

func (s stubOracle) HasPermission(ctx context.Context, roles []string, permission string) (bool, error) {
	for _, role := range roles {
		if s.allowed[role+":"+permission] {
			return true, nil
		}
	}
	return false, nil
}

func TestSessionOrchestrator_Login(t *testing.T) {
	ctx := context.Background()
	fx := setupSession(t)
	user := seedUser(t, fx.repo, "login@example.com", "s3cret-pass")

	t.Run("valid credentials mint a pair", func(t *testing.T) {
		pair, err := fx.sess.Login(ctx, "login@example.com", "s3cret-pass", chrome120UA)
		require.NoError(t, err)

		assert.Equal(t, user.ID.String(), pair.UserID)
		assert.NotEmpty(t, pair.RefreshToken)

		claims, err := fx.codec.DecodeAccessToken(ctx, pair.AccessToken, identity.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID())

		require.Len(t, fx.sink.byType(identity.ActivityEventLoginSuccess), 1)
	})

	t.Run("bad password is audited", func(t *testing.T) {
		_, err := fx.sess.Login(ctx, "login@example.com", "wrong", chrome120UA)
		require.Error(t, err)

		failures := fx.sink.byType(identity.ActivityEventLoginFailure)
		require.Len(t, failures, 1)
		assert.Equal(t, "login@example.com", failures[0].Metadata["username"])
	})
}

func TestSessionOrchestrator_Refresh(t *testing.T) {
	ctx := context.Background()
	fx := setupSession(t)
	seedUser(t, fx.repo, "refresh@example.com", "s3cret-pass")

	loginAt := fx.clock.Now()
	pair, err := fx.sess.Login(ctx, "refresh@example.com", "s3cret-pass", chrome120UA)
	require.NoError(t, err)

	t.Run("same browser refreshes", func(t *testing.T) {
		out, err := fx.sess.Refresh(ctx, pair.RefreshToken, chrome120UA)
		require.NoError(t, err)
		assert.Equal(t, pair.RefreshToken, out.RefreshToken, "refresh token is long lived")
		assert.NotEmpty(t, out.AccessToken)
		require.Len(t, fx.sink.byType(identity.ActivityEventRefresh), 1)
	})

	t.Run("upgraded browser refreshes", func(t *testing.T) {
		_, err := fx.sess.Refresh(ctx, pair.RefreshToken, chrome121UA)
		require.NoError(t, err)
	})

	t.Run("downgraded browser is refused", func(t *testing.T) {
		_, err := fx.sess.Refresh(ctx, pair.RefreshToken, chrome119UA)
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeRefreshNotAllowed))
	})

	t.Run("different browser family is refused", func(t *testing.T) {
		_, err := fx.sess.Refresh(ctx, pair.RefreshToken, firefox121UA)
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeRefreshNotAllowed))
	})

	t.Run("refreshed access token keeps the original login time", func(t *testing.T) {
		fx.clock.Advance(10 * time.Minute)

		out, err := fx.sess.Refresh(ctx, pair.RefreshToken, chrome120UA)
		require.NoError(t, err)

		claims, err := fx.codec.DecodeAccessToken(ctx, out.AccessToken, identity.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, loginAt.Unix(), claims.LoggedAt)
	})

	t.Run("unknown refresh value is refused", func(t *testing.T) {
		_, err := fx.sess.Refresh(ctx, "no-such-token", chrome120UA)
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeRefreshNotAllowed))
	})
}

func TestSessionOrchestrator_Logout(t *testing.T) {
	ctx := context.Background()
	fx := setupSession(t)
	seedUser(t, fx.repo, "logout@example.com", "s3cret-pass")

	pair, err := fx.sess.Login(ctx, "logout@example.com", "s3cret-pass", chrome120UA)
	require.NoError(t, err)

	require.NoError(t, fx.sess.Logout(ctx, pair.RefreshToken))
	require.Len(t, fx.sink.byType(identity.ActivityEventLogout), 1)

	// the session is gone
	_, err = fx.sess.Refresh(ctx, pair.RefreshToken, chrome120UA)
	require.Error(t, err)
	assert.True(t, identity.IsTextCode(err, identity.TextCodeRefreshNotAllowed))

	// revoking again is a no-op
	require.NoError(t, fx.sess.Logout(ctx, pair.RefreshToken))
	assert.Len(t, fx.sink.byType(identity.ActivityEventLogout), 1)
}

func TestSessionOrchestrator_ExchangeCode(t *testing.T) {
	ctx := context.Background()
	fx := setupSession(t)
	user := seedUser(t, fx.repo, "grant@example.com", "")

	t.Run("grant redeems exactly once", func(t *testing.T) {
		grant, err := fx.sess.IssueSSOGrant(ctx, user, "google")
		require.NoError(t, err)
		require.Len(t, fx.sink.byType(identity.ActivityEventSSOLogin), 1)

		pair, err := fx.sess.ExchangeCode(ctx, grant.Value, chrome120UA)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), pair.UserID)
		assert.NotEmpty(t, pair.RefreshToken)

		_, err = fx.sess.ExchangeCode(ctx, grant.Value, chrome120UA)
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeTokenAlreadyUsed))

		var rich *goerrors.Error
		require.True(t, errors.As(err, &rich))
		assert.Equal(t, http.StatusUnprocessableEntity, rich.Code)
	})

	t.Run("expired grant is refused", func(t *testing.T) {
		grant, err := fx.sess.IssueSSOGrant(ctx, user, "google")
		require.NoError(t, err)

		fx.clock.Advance(identity.SSOGrantTTL + time.Minute)

		_, err = fx.sess.ExchangeCode(ctx, grant.Value, chrome120UA)
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeTokenExpired))
	})
}

func TestSessionOrchestrator_Impersonate(t *testing.T) {
	ctx := context.Background()
	fx := setupSession(t)

	org := seedUser(t, fx.repo, "org@example.com", "")
	org.Roles = []string{identity.RoleOrganization}
	org, err := fx.repo.Users().Update(ctx, org, repository.UpdateByID(org.ID.String()))
	require.NoError(t, err)

	member := seedUser(t, fx.repo, "member@example.com", "")
	member.Organizations = map[string]identity.OrgMembership{
		org.ID.String(): {Roles: []string{"admin", "billing"}},
	}
	member, err = fx.repo.Users().Update(ctx, member, repository.UpdateByID(member.ID.String()))
	require.NoError(t, err)

	outsider := seedUser(t, fx.repo, "outsider@example.com", "")
	support := seedUser(t, fx.repo, "support@example.com", "")
	support.Roles = []string{"support"}
	support, err = fx.repo.Users().Update(ctx, support, repository.UpdateByID(support.ID.String()))
	require.NoError(t, err)

	claimsFor := func(u *identity.User) *identity.AccessClaims {
		signed, err := fx.codec.CreateAccessToken(ctx, u, identity.ExtraClaims{LoggedAt: fx.clock.Now()}, 0)
		require.NoError(t, err)
		claims, err := fx.codec.DecodeAccessToken(ctx, signed, identity.DecodeOptions{})
		require.NoError(t, err)
		return claims
	}

	t.Run("member impersonates their organization", func(t *testing.T) {
		access, err := fx.sess.Impersonate(ctx, claimsFor(member), identity.ImpersonationRequest{
			TargetUserID: org.ID.String(),
		})
		require.NoError(t, err)

		claims, err := fx.codec.DecodeAccessToken(ctx, access, identity.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, org.ID.String(), claims.UserID())
		assert.Equal(t, []string{"admin", "billing"}, claims.Roles, "minted roles are the caller's membership roles")
		assert.Equal(t, []string{identity.RoleOrganization}, claims.OrgRoles, "orgRoles preserves the target's own roles")
		assert.Equal(t, member.ID.String(), claims.SourceUserID)
		assert.True(t, claims.Impersonated())

		require.Len(t, fx.sink.byType(identity.ActivityEventImpersonationSuccess), 1)
	})

	t.Run("permission holder impersonates any user", func(t *testing.T) {
		fx.sess.WithPermissionOracle(stubOracle{allowed: map[string]bool{
			"support:" + identity.PermImpersonate: true,
		}})

		access, err := fx.sess.Impersonate(ctx, claimsFor(support), identity.ImpersonationRequest{
			TargetUserID: outsider.ID.String(),
		})
		require.NoError(t, err)

		claims, err := fx.codec.DecodeAccessToken(ctx, access, identity.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, outsider.ID.String(), claims.UserID())
		assert.Equal(t, outsider.Roles, claims.Roles, "permission path keeps the target's roles")
		assert.Equal(t, support.ID.String(), claims.SourceUserID)
	})

	t.Run("everyone else is denied and audited", func(t *testing.T) {
		fx.sess.WithPermissionOracle(stubOracle{})

		_, err := fx.sess.Impersonate(ctx, claimsFor(outsider), identity.ImpersonationRequest{
			TargetUserID: org.ID.String(),
		})
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, identity.TextCodeImpersonationDenied))
		require.Len(t, fx.sink.byType(identity.ActivityEventImpersonationFailure), 1)
	})

	t.Run("system mode trusts the host", func(t *testing.T) {
		access, err := fx.sess.Impersonate(ctx, nil, identity.ImpersonationRequest{
			TargetUserID: outsider.ID.String(),
			System:       true,
			Roles:        []string{"auditor"},
			TTL:          10 * time.Minute,
		})
		require.NoError(t, err)

		claims, err := fx.codec.DecodeAccessToken(ctx, access, identity.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"auditor"}, claims.Roles)
		assert.Empty(t, claims.SourceUserID)
	})

	t.Run("unknown target fails", func(t *testing.T) {
		_, err := fx.sess.Impersonate(ctx, claimsFor(member), identity.ImpersonationRequest{
			TargetUserID: uuid.NewString(),
		})
		require.Error(t, err)
	})
}
