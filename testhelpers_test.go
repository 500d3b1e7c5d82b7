package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-identity"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    platform_id TEXT NOT NULL,
    env TEXT NOT NULL,
    email TEXT,
    first_name TEXT,
    last_name TEXT,
    display_name TEXT,
    phone_number TEXT,
    roles TEXT,
    organizations TEXT,
    platform_data TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateAuthMeans = `CREATE TABLE auth_means (
    id TEXT NOT NULL PRIMARY KEY,
    platform_id TEXT NOT NULL,
    env TEXT NOT NULL,
    provider TEXT NOT NULL,
    user_id TEXT NOT NULL,
    identifier TEXT,
    password_hash TEXT,
    tokens TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    CONSTRAINT uq_auth_means_provider_user UNIQUE (platform_id, env, provider, user_id)
);`

	sqliteCreateAuthTokens = `CREATE TABLE auth_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    platform_id TEXT NOT NULL,
    env TEXT NOT NULL,
    type TEXT NOT NULL,
    value TEXT NOT NULL,
    user_id TEXT,
    reference TEXT,
    checked BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT uq_auth_tokens_type_value UNIQUE (platform_id, env, type, value)
);`

	sqliteCreateTenantSecrets = `CREATE TABLE tenant_secrets (
    platform_id TEXT NOT NULL,
    env TEXT NOT NULL,
    secret TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (platform_id, env)
);`
)

var testTenant = identity.Tenant{PlatformID: "plat_1", Env: "test"}

func setupRepos(t *testing.T) identity.RepositoryManager {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, ddl := range []string{
		sqliteCreateUsers,
		sqliteCreateAuthMeans,
		sqliteCreateAuthTokens,
		sqliteCreateTenantSecrets,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return identity.NewRepositoryManager(bunDB, testTenant)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *capturingSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) byType(typ identity.ActivityEventType) []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []identity.ActivityEvent
	for _, e := range s.events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

// testConfig satisfies identity.Config with fixed values.
type testConfig struct {
	accessTTL    time.Duration
	refreshTTL   time.Duration
	defaultRoles []string
	issuer       string
	environment  string
}

func (c testConfig) GetAccessTokenTTL() time.Duration  { return c.accessTTL }
func (c testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c testConfig) GetDefaultRoles() []string         { return c.defaultRoles }
func (c testConfig) GetIssuer() string                 { return c.issuer }
func (c testConfig) GetEnvironment() string            { return c.environment }

func newTestConfig() testConfig {
	return testConfig{
		accessTTL:    time.Hour,
		refreshTTL:   30 * 24 * time.Hour,
		defaultRoles: []string{"user"},
		issuer:       "identity-test",
		environment:  "test",
	}
}

func seedUser(t *testing.T, repo identity.RepositoryManager, email, password string) *identity.User {
	t.Helper()
	ctx := context.Background()

	user, err := repo.Users().Create(ctx, &identity.User{
		Email:       email,
		DisplayName: email,
		Roles:       []string{"user"},
	})
	require.NoError(t, err)

	if password != "" {
		hash, err := identity.HashPassword(password)
		require.NoError(t, err)

		_, err = repo.AuthMeans().Create(ctx, &identity.AuthMean{
			Provider:     identity.ProviderLocal,
			UserID:       user.ID,
			PasswordHash: hash,
		})
		require.NoError(t, err)
	}

	return user
}
