package sso_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/sso"
)

// fakeProvider is an httptest-backed token + userinfo endpoint pair.
type fakeProvider struct {
	server *httptest.Server

	tokenStatus   int
	tokenPayload  map[string]any
	userInfoCode  int
	userInfoBody  any
	tokenRequests int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		tokenStatus:  http.StatusOK,
		tokenPayload: map[string]any{"access_token": "provider-access", "token_type": "Bearer"},
		userInfoCode: http.StatusOK,
		userInfoBody: map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_ = json.NewEncoder(w).Encode(p.tokenPayload)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.userInfoCode)
		_ = json.NewEncoder(w).Encode(p.userInfoBody)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) connection(protocol string) *sso.Connection {
	return &sso.Connection{
		Provider:               "acme-idp",
		Protocol:               protocol,
		ClientID:               "client-id",
		ClientSecret:           "client-secret",
		RedirectURL:            "https://app.example.com/auth/sso/acme-idp/callback",
		AfterAuthenticationURL: "https://app.example.com/auth/done",
		IsCustom:               true,
		AuthorizationURL:       p.server.URL + "/authorize",
		TokenURL:               p.server.URL + "/token",
		UserInfoURL:            p.server.URL + "/userinfo",
	}
}

func signIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("provider-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestClient_AuthCodeURL(t *testing.T) {
	p := newFakeProvider(t)

	client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
	require.NoError(t, err)

	u := client.AuthCodeURL("opaque-state")
	assert.Contains(t, u, p.server.URL+"/authorize")
	assert.Contains(t, u, "state=opaque-state")
	assert.Contains(t, u, "client_id=client-id")
}

func TestClient_OAuth2Exchange(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider(t)
	p.userInfoBody = map[string]any{"id": "ext-1", "email": "user@example.com"}

	client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
	require.NoError(t, err)

	result, err := client.Exchange(ctx, "authorization-code")
	require.NoError(t, err)

	assert.Equal(t, "ext-1", result.Claims["id"])
	assert.Equal(t, "user@example.com", result.Claims["email"])

	tokens := result.ProviderTokens()
	assert.Equal(t, "provider-access", tokens["access_token"])
}

func TestClient_ProviderOutageVersusRejection(t *testing.T) {
	ctx := context.Background()

	t.Run("5xx is an outage", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenStatus = http.StatusBadGateway
		p.tokenPayload = map[string]any{"error": "upstream"}

		client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeProviderUnavailable))
	})

	t.Run("4xx is a rejection", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenStatus = http.StatusBadRequest
		p.tokenPayload = map[string]any{"error": "invalid_grant"}

		client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeExchangeFailed))
	})

	t.Run("user info 5xx is an outage", func(t *testing.T) {
		p := newFakeProvider(t)
		p.userInfoCode = http.StatusInternalServerError

		client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeProviderUnavailable))
	})

	t.Run("user info 4xx fails the login", func(t *testing.T) {
		p := newFakeProvider(t)
		p.userInfoCode = http.StatusForbidden

		client, err := sso.NewClient(p.connection(sso.ProtocolOAuth2))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeUserInfoFailed))
	})
}

func TestClient_OpenIDExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("userinfo merges over id_token claims", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenPayload["id_token"] = signIDToken(t, jwt.MapClaims{
			"sub":   "subject-1",
			"email": "stale@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		p.userInfoBody = map[string]any{"email": "fresh@example.com"}

		client, err := sso.NewClient(p.connection(sso.ProtocolOpenID))
		require.NoError(t, err)

		result, err := client.Exchange(ctx, "authorization-code")
		require.NoError(t, err)

		assert.Equal(t, "subject-1", result.Claims["sub"])
		assert.Equal(t, "fresh@example.com", result.Claims["email"])
		assert.NotEmpty(t, result.IDToken)
		assert.Equal(t, result.IDToken, result.ProviderTokens()["id_token"])
	})

	t.Run("id_token alone is enough", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenPayload["id_token"] = signIDToken(t, jwt.MapClaims{
			"sub":   "subject-2",
			"email": "only@example.com",
		})

		conn := p.connection(sso.ProtocolOpenID)
		conn.UserInfoURL = ""

		client, err := sso.NewClient(conn)
		require.NoError(t, err)

		result, err := client.Exchange(ctx, "authorization-code")
		require.NoError(t, err)
		assert.Equal(t, "only@example.com", result.Claims["email"])
	})

	t.Run("missing id_token fails the exchange", func(t *testing.T) {
		p := newFakeProvider(t)

		client, err := sso.NewClient(p.connection(sso.ProtocolOpenID))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeExchangeFailed))
	})

	t.Run("malformed id_token fails the exchange", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenPayload["id_token"] = "not-a-jwt"

		client, err := sso.NewClient(p.connection(sso.ProtocolOpenID))
		require.NoError(t, err)

		_, err = client.Exchange(ctx, "authorization-code")
		require.Error(t, err)
		assert.True(t, identity.IsTextCode(err, sso.TextCodeExchangeFailed))
	})
}

func TestClient_RejectsInvalidConnection(t *testing.T) {
	_, err := sso.NewClient(nil)
	require.Error(t, err)

	_, err = sso.NewClient(&sso.Connection{Provider: "google"})
	require.Error(t, err)
	assert.True(t, identity.IsTextCode(err, sso.TextCodeInvalidConnection))
}
