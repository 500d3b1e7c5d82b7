package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderLocal is the provider key for username/password credentials.
const ProviderLocal = "_local_"

// RoleOrganization marks a user record that represents an organization.
const RoleOrganization = "organization"

// OrgMembership describes the roles a user holds inside one organization.
type OrgMembership struct {
	Roles []string `json:"roles"`
}

// User is the user model. SSO logins may create or merge into it; every
// other mutation is owned elsewhere.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID                `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	PlatformID    string                   `bun:"platform_id,notnull" json:"platform_id,omitempty"`
	Env           string                   `bun:"env,notnull" json:"env,omitempty"`
	Email         string                   `bun:"email" json:"email,omitempty"`
	FirstName     string                   `bun:"first_name" json:"first_name,omitempty"`
	LastName      string                   `bun:"last_name" json:"last_name,omitempty"`
	DisplayName   string                   `bun:"display_name" json:"display_name,omitempty"`
	Phone         string                   `bun:"phone_number" json:"phone_number,omitempty"`
	Roles         []string                 `bun:"roles" json:"roles,omitempty"`
	Organizations map[string]OrgMembership `bun:"organizations" json:"organizations,omitempty"`
	PlatformData  map[string]any           `bun:"platform_data" json:"platform_data,omitempty"`
	CreatedAt     *time.Time               `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time               `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time               `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MemberOf returns the caller's membership in the given organization, if any.
func (u *User) MemberOf(orgID string) (OrgMembership, bool) {
	m, ok := u.Organizations[orgID]
	return m, ok
}

// SSOProviders returns the providers recorded in platformData.
func (u *User) SSOProviders() []string {
	raw, ok := u.PlatformData["ssoProviders"]
	if !ok {
		return nil
	}

	switch vs := raw.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// RecordSSOProvider appends provider to platformData.ssoProviders if absent.
// It reports whether the record changed.
func (u *User) RecordSSOProvider(provider string) bool {
	providers := u.SSOProviders()
	for _, p := range providers {
		if p == provider {
			return false
		}
	}

	if u.PlatformData == nil {
		u.PlatformData = map[string]any{}
	}
	u.PlatformData["ssoProviders"] = append(providers, provider)
	return true
}

// AuthMean binds a user to one authentication method: either the local
// password or one external provider identity. One row per (provider, user).
type AuthMean struct {
	bun.BaseModel `bun:"table:auth_means,alias:am"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	PlatformID    string         `bun:"platform_id,notnull" json:"platform_id,omitempty"`
	Env           string         `bun:"env,notnull" json:"env,omitempty"`
	Provider      string         `bun:"provider,notnull" json:"provider,omitempty"`
	UserID        uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Identifier    string         `bun:"identifier" json:"identifier,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	Tokens        map[string]any `bun:"tokens" json:"-"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// TokenType namespaces AuthToken values.
type TokenType = string

const (
	TokenRefresh          TokenType = "refresh"
	TokenResetPassword    TokenType = "resetPassword"
	TokenCheck            TokenType = "check"
	TokenSSOLogin         TokenType = "ssoLogin"
	TokenOAuthLoginState  TokenType = "oAuthLoginState"
	TokenOAuthLogoutState TokenType = "oAuthLogoutState"
)

// AuthToken is a single-use or expiring server-side secret backing refresh
// sessions, SSO state, password reset, and verification checks. Value is
// unique within its Type namespace.
type AuthToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:tok"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	PlatformID    string         `bun:"platform_id,notnull" json:"platform_id,omitempty"`
	Env           string         `bun:"env,notnull" json:"env,omitempty"`
	Type          TokenType      `bun:"type,notnull" json:"type,omitempty"`
	Value         string         `bun:"value,notnull" json:"-"`
	UserID        *uuid.UUID     `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	Reference     map[string]any `bun:"reference" json:"reference,omitempty"`
	Checked       bool           `bun:"checked" json:"checked,omitempty"`
	ExpiresAt     time.Time      `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token's expiration date has passed.
func (t *AuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// RefString returns a string payload from the reference document.
func (t *AuthToken) RefString(key string) string {
	if t.Reference == nil {
		return ""
	}
	s, _ := t.Reference[key].(string)
	return s
}

// TenantSecret holds the per-tenant token signing secret.
type TenantSecret struct {
	bun.BaseModel `bun:"table:tenant_secrets,alias:ts"`
	PlatformID    string     `bun:"platform_id,pk" json:"platform_id"`
	Env           string     `bun:"env,pk" json:"env"`
	Secret        string     `bun:"secret,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Tenant scopes every repository to one (platform, environment) pair.
type Tenant struct {
	PlatformID string
	Env        string
}

// Key returns a stable cache key for the tenant.
func (t Tenant) Key() string {
	return t.PlatformID + "/" + t.Env
}
