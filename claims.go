package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of a signed access token. Access tokens are
// stateless: nothing here is persisted server side.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	LoggedAt int64    `json:"loggedAt,omitempty"`

	// Impersonation metadata. SourceUserID is the authenticated caller when
	// the token was minted for somebody else; OrgRoles preserves the target
	// organization's own roles so the original context can be restored.
	SourceUserID   string   `json:"sourceUserId,omitempty"`
	OrgRoles       []string `json:"orgRoles,omitempty"`
	OrgPermissions []string `json:"orgPermissions,omitempty"`
}

// UserID returns the subject user id.
func (c *AccessClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// HasRole checks whether the token carries a role.
func (c *AccessClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Impersonated reports whether the token was minted on behalf of a
// different authenticated user.
func (c *AccessClaims) Impersonated() bool {
	return c.SourceUserID != "" && c.SourceUserID != c.UserID()
}

// Expires returns the expiration time.
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// ExtraClaims carries caller-supplied claim values into CreateAccessToken.
type ExtraClaims struct {
	LoggedAt       time.Time
	SourceUserID   string
	OrgRoles       []string
	OrgPermissions []string
}
