// Package identity implements authentication and federated identity for
// multi-tenant platforms: local credential verification, stateless access
// tokens, server-side ephemeral tokens, and session orchestration.
//
// Tokens:
//   - Access tokens are HS256 JWTs signed with a per-tenant secret that is
//     created on first use and cached process wide. TokenCodec mints and
//     verifies them; nothing about an access token is persisted.
//   - Every other token (refresh, password reset, verification checks, SSO
//     state and grants) is an opaque server-side AuthToken. TokenStore
//     issues them and consumes them atomically, so single-use semantics
//     hold under concurrent redemption.
//
// Sessions:
//   - SessionOrchestrator composes the codec, token store, and
//     CredentialVerifier into login, refresh, logout, SSO code exchange,
//     and impersonation. Refresh tokens are bound to the user agent that
//     created them.
//   - IdentityResolver maps external provider claims onto users, creating
//     on first contact and merging without overwriting afterwards. The sso
//     subpackage drives the provider protocol flows and hands results back
//     through it.
//
// Activity sinks:
//   - ActivitySink receives audit events (logins, password changes, token
//     checks, impersonation). Sinks run best-effort: failures are logged
//     and never fail the action that already succeeded.
package identity
