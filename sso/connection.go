package sso

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Protocol names the flavor of a connection.
const (
	ProtocolOAuth2 = "oauth2"
	ProtocolOpenID = "openid"
)

// Connection is the per-provider SSO configuration a platform supplies. A
// connection either names a built-in provider, which pre-seeds endpoints and
// claim mappings, or declares itself custom and brings its own endpoints.
type Connection struct {
	Provider     string   `json:"provider"`
	Protocol     string   `json:"protocol"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	Scopes       []string `json:"scopes,omitempty"`
	RedirectURL  string   `json:"redirectUrl"`

	// Custom endpoint configuration. Only honored when IsCustom is set; a
	// built-in provider carrying endpoint overrides is a misconfiguration,
	// not a silent merge.
	IsCustom         bool   `json:"isCustom,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl,omitempty"`
	UserInfoURL      string `json:"userInfoUrl,omitempty"`
	JwksURL          string `json:"jwksUrl,omitempty"`
	EndSessionURL    string `json:"endSessionUrl,omitempty"`

	ClaimMapping map[string]string `json:"claimMapping,omitempty"`

	AfterAuthenticationURL string `json:"afterAuthenticationUrl"`
	AfterLogoutURL         string `json:"afterLogoutUrl,omitempty"`

	UsePKCE bool `json:"usePkce,omitempty"`
}

// Validate runs the connection configuration rules.
func (c Connection) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required),
		validation.Field(&c.Protocol, validation.Required, validation.In(ProtocolOAuth2, ProtocolOpenID)),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
		validation.Field(&c.RedirectURL, validation.Required, is.URL),
		validation.Field(&c.AuthorizationURL, is.URL),
		validation.Field(&c.TokenURL, is.URL),
		validation.Field(&c.UserInfoURL, is.URL),
		validation.Field(&c.JwksURL, is.URL),
		validation.Field(&c.EndSessionURL, is.URL),
		validation.Field(&c.AfterAuthenticationURL, validation.Required, is.URL),
		validation.Field(&c.AfterLogoutURL, is.URL),
	)
	if err != nil {
		return invalidConnection(c.Provider, err.Error())
	}

	if c.IsCustom {
		if c.AuthorizationURL == "" || c.TokenURL == "" {
			return invalidConnection(c.Provider, "custom connections require authorizationUrl and tokenUrl")
		}
		if c.Protocol == ProtocolOAuth2 && c.UserInfoURL == "" {
			return invalidConnection(c.Provider, "custom oauth2 connections require userInfoUrl")
		}
	} else {
		if !IsBuiltinProvider(c.Provider) {
			return invalidConnection(c.Provider, "unknown provider; set isCustom to bring your own endpoints")
		}
		if c.AuthorizationURL != "" || c.TokenURL != "" || c.UserInfoURL != "" || c.JwksURL != "" || c.EndSessionURL != "" {
			return invalidConnection(c.Provider, "endpoint overrides require isCustom")
		}
	}

	if c.EndSessionURL != "" && c.Protocol != ProtocolOpenID {
		return invalidConnection(c.Provider, "endSessionUrl requires the openid protocol")
	}

	return nil
}

// SupportsLogout reports whether the connection can build a provider logout
// redirect. Only openid connections with an end-session endpoint can.
func (c Connection) SupportsLogout() bool {
	if c.Protocol != ProtocolOpenID {
		return false
	}
	return c.resolved().EndSessionURL != ""
}

// resolved merges built-in defaults into the connection. Custom connections
// come back unchanged.
func (c Connection) resolved() Connection {
	if c.IsCustom {
		return c
	}

	builtin, ok := BuiltinProvider(c.Provider)
	if !ok {
		return c
	}

	c.AuthorizationURL = builtin.AuthorizationURL
	c.TokenURL = builtin.TokenURL
	c.UserInfoURL = builtin.UserInfoURL
	c.JwksURL = builtin.JwksURL
	c.EndSessionURL = builtin.EndSessionURL
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), builtin.Scopes...)
	}
	if len(c.ClaimMapping) == 0 && len(builtin.ClaimMapping) > 0 {
		c.ClaimMapping = builtin.ClaimMapping
	}
	return c
}

func invalidConnection(provider, reason string) error {
	return ErrInvalidConnection.Clone().
		WithMetadata(map[string]any{
			"provider": provider,
			"reason":   reason,
		})
}

// ConnectionStore resolves the SSO connection configured for a provider.
// Connections live with the host platform configuration.
type ConnectionStore interface {
	GetConnection(provider string) (*Connection, error)
}

// ConnectionStoreFunc adapts a function to the ConnectionStore interface.
type ConnectionStoreFunc func(provider string) (*Connection, error)

// GetConnection implements ConnectionStore.
func (f ConnectionStoreFunc) GetConnection(provider string) (*Connection, error) {
	return f(provider)
}
