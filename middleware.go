package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// ClaimsContextKey is where RequireAuth stores the decoded claims in the
// router locals.
const ClaimsContextKey = "claims"

// MiddlewareConfig tunes the RequireAuth middleware.
type MiddlewareConfig struct {
	// Filter skips authentication for matching requests.
	Filter func(router.Context) bool
	// RequiredRole, when set, must be present in the token's role list.
	RequiredRole string
	// ErrorHandler shapes the rejection response. Defaults to a bare 401.
	ErrorHandler func(router.Context, error) error
}

// RequireAuth guards routes behind a bearer access token. Decoded claims are
// stored in the router locals under ClaimsContextKey and propagated to the
// request context for handlers that only see a context.Context.
func RequireAuth(codec *TokenCodec, config ...MiddlewareConfig) router.MiddlewareFunc {
	cfg := MiddlewareConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			var richErr *errors.Error
			if !errors.As(err, &richErr) {
				richErr = errors.Wrap(err, errors.CategoryAuth, "unauthorized").
					WithCode(errors.CodeUnauthorized)
			}
			code := richErr.Code
			if code == 0 {
				code = errors.CodeUnauthorized
			}
			return ctx.JSON(code, map[string]any{
				"error": map[string]any{
					"message":   richErr.Message,
					"category":  richErr.Category,
					"text_code": richErr.TextCode,
				},
			})
		}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
			if !ok || raw == "" {
				return cfg.ErrorHandler(ctx, errors.New("missing bearer token", errors.CategoryAuth).
					WithCode(errors.CodeUnauthorized))
			}

			claims, err := codec.DecodeAccessToken(ctx.Context(), raw, DecodeOptions{})
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
				return cfg.ErrorHandler(ctx, errors.New("insufficient role", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden).
					WithMetadata(map[string]any{"role": cfg.RequiredRole}))
			}

			ctx.Locals(ClaimsContextKey, claims)
			ctx.SetContext(WithClaims(ctx.Context(), claims))

			return next(ctx)
		}
	}
}
