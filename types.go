package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config is the platform configuration oracle. It supplies token policy,
// default roles, and the runtime environment; the values themselves are
// owned elsewhere.
type Config interface {
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetDefaultRoles() []string
	GetIssuer() string
	GetEnvironment() string
}

// EnvLive is the environment value under which user-enumeration responses
// and verbose error details are suppressed.
const EnvLive = "live"

// IsLive reports whether cfg describes a production environment.
func IsLive(cfg Config) bool {
	return cfg != nil && cfg.GetEnvironment() == EnvLive
}

// PermissionOracle answers role/permission questions. The permission graph
// itself lives outside this module.
type PermissionOracle interface {
	HasPermission(ctx context.Context, roles []string, permission string) (bool, error)
}

// SecretStore persists the per-tenant token signing secret.
// SetIfAbsent must be race tolerant: concurrent first-time writers all
// receive the single value that ended up stored.
type SecretStore interface {
	Get(ctx context.Context) (string, error)
	SetIfAbsent(ctx context.Context, secret string) (string, error)
}

// Clock lets tests control time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// DefaultLogger returns the stdout logger used when none is injected.
func DefaultLogger() Logger { return defLogger{} }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
