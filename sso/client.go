package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

const providerTimeout = 10 * time.Second

// Claims is the raw claim set obtained from a provider.
type Claims map[string]any

// AuthResult is what a completed code exchange yields.
type AuthResult struct {
	Claims  Claims
	Token   *oauth2.Token
	IDToken string
}

// ProviderTokens flattens the provider token set for persistence.
func (r *AuthResult) ProviderTokens() map[string]any {
	if r == nil || r.Token == nil {
		return nil
	}

	tokens := map[string]any{
		"access_token": r.Token.AccessToken,
		"token_type":   r.Token.TokenType,
	}
	if r.Token.RefreshToken != "" {
		tokens["refresh_token"] = r.Token.RefreshToken
	}
	if !r.Token.Expiry.IsZero() {
		tokens["expires_at"] = r.Token.Expiry.Unix()
	}
	if r.IDToken != "" {
		tokens["id_token"] = r.IDToken
	}
	return tokens
}

// ProtocolClient speaks one authorization protocol against one connection.
// The flavor is selected once, when the client is built.
type ProtocolClient interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*AuthResult, error)
}

// NewClient builds the protocol client for a validated connection.
func NewClient(conn *Connection) (ProtocolClient, error) {
	if conn == nil {
		return nil, ErrInvalidConnection.Clone()
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	resolved := conn.resolved()
	base := &oauth2Client{
		conn: resolved,
		config: oauth2.Config{
			ClientID:     resolved.ClientID,
			ClientSecret: resolved.ClientSecret,
			RedirectURL:  resolved.RedirectURL,
			Scopes:       resolved.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  resolved.AuthorizationURL,
				TokenURL: resolved.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: providerTimeout},
	}

	if resolved.Protocol == ProtocolOpenID {
		return &openidClient{oauth2Client: base}, nil
	}
	return base, nil
}

type oauth2Client struct {
	conn       Connection
	config     oauth2.Config
	httpClient *http.Client
}

func (c *oauth2Client) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return c.config.AuthCodeURL(state, opts...)
}

func (c *oauth2Client) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*AuthResult, error) {
	token, err := c.exchangeToken(ctx, code, opts...)
	if err != nil {
		return nil, err
	}

	claims, err := c.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	idToken, _ := token.Extra("id_token").(string)
	return &AuthResult{
		Claims:  claims,
		Token:   token,
		IDToken: idToken,
	}, nil
}

func (c *oauth2Client) exchangeToken(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, mapProviderError(err, "code exchange")
	}
	return token, nil
}

func (c *oauth2Client) fetchUserInfo(ctx context.Context, token *oauth2.Token) (Claims, error) {
	if c.conn.UserInfoURL == "" {
		return Claims{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conn.UserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build user info request")
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapProviderError(err, "user info")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapProviderError(err, "user info")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, ErrProviderUnavailable.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"status":   resp.StatusCode,
			})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ErrUserInfoFailed.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"status":   resp.StatusCode,
			})
	}

	claims := Claims{}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, ErrUserInfoFailed.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"reason":   "invalid json",
			})
	}
	return claims, nil
}

// openidClient layers id_token handling on top of the plain oauth2 flow.
// When the connection also names a userInfo endpoint, those claims merge
// over the id_token claims.
type openidClient struct {
	*oauth2Client

	jwksOnce sync.Once
	jwks     *keyfunc.JWKS
	jwksErr  error
}

func (c *openidClient) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*AuthResult, error) {
	token, err := c.exchangeToken(ctx, code, opts...)
	if err != nil {
		return nil, err
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrExchangeFailed.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"reason":   "missing id_token",
			})
	}

	claims, err := c.decodeIDToken(idToken)
	if err != nil {
		return nil, err
	}

	if c.conn.UserInfoURL != "" {
		info, err := c.fetchUserInfo(ctx, token)
		if err != nil {
			return nil, err
		}
		for k, v := range info {
			claims[k] = v
		}
	}

	return &AuthResult{
		Claims:  claims,
		Token:   token,
		IDToken: idToken,
	}, nil
}

// decodeIDToken extracts the id_token claim set. With a JWKS endpoint the
// signature is verified; without one the token is trusted as-is because it
// arrived over the TLS token-endpoint channel, not from the browser.
func (c *openidClient) decodeIDToken(idToken string) (Claims, error) {
	claims := jwt.MapClaims{}

	if c.conn.JwksURL == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
			return nil, ErrExchangeFailed.Clone().
				WithMetadata(map[string]any{
					"provider": c.conn.Provider,
					"reason":   "malformed id_token",
				})
		}
		return Claims(claims), nil
	}

	jwks, err := c.keySet()
	if err != nil {
		return nil, err
	}

	if _, err := jwt.ParseWithClaims(idToken, claims, jwks.Keyfunc); err != nil {
		return nil, ErrExchangeFailed.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"reason":   fmt.Sprintf("id_token verification: %v", err),
			})
	}
	return Claims(claims), nil
}

func (c *openidClient) keySet() (*keyfunc.JWKS, error) {
	c.jwksOnce.Do(func() {
		c.jwks, c.jwksErr = keyfunc.Get(c.conn.JwksURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    providerTimeout,
			RefreshUnknownKID: true,
		})
	})

	if c.jwksErr != nil {
		return nil, ErrProviderUnavailable.Clone().
			WithMetadata(map[string]any{
				"provider": c.conn.Provider,
				"reason":   "jwks fetch failed",
			})
	}
	return c.jwks, nil
}

// mapProviderError distinguishes "the provider is down" from "the provider
// said no".
func mapProviderError(err error, op string) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.Response != nil && retrieve.Response.StatusCode >= http.StatusInternalServerError {
			return ErrProviderUnavailable.Clone().
				WithMetadata(map[string]any{
					"op":     op,
					"status": retrieve.Response.StatusCode,
				})
		}
		return ErrExchangeFailed.Clone().
			WithMetadata(map[string]any{
				"op":     op,
				"reason": retrieve.ErrorCode,
			})
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrProviderUnavailable.Clone().
			WithMetadata(map[string]any{"op": op, "reason": "timeout"})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderUnavailable.Clone().
			WithMetadata(map[string]any{"op": op, "reason": "timeout"})
	}

	return ErrProviderUnavailable.Clone().
		WithMetadata(map[string]any{"op": op, "reason": err.Error()})
}
