package sso

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-identity"
)

// Controller exposes the SSO flows over HTTP: start, callback, and the
// provider logout pair. Everything else, the code exchange included, lives
// with the identity controller.
type Controller struct {
	Auth         *Authenticator
	Logger       identity.Logger
	ErrorHandler func(router.Context, error) error
}

// NewController builds the SSO HTTP controller.
func NewController(auth *Authenticator) *Controller {
	c := &Controller{
		Auth:   auth,
		Logger: identity.DefaultLogger(),
	}
	c.ErrorHandler = c.defaultErrHandler
	return c
}

// RegisterRoutes mounts the SSO endpoints on the host router.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get("/auth/sso/:provider", c.StartGet).SetName("sso.start")
	app.Get("/auth/sso/:provider/callback", c.CallbackGet).SetName("sso.callback")
	app.Get("/auth/sso/:provider/logout", c.LogoutGet).SetName("sso.logout")
	app.Get("/auth/sso/logout/callback", c.LogoutCallbackGet).SetName("sso.logout.callback")
}

// StartGet redirects the browser to the provider's authorization endpoint.
func (c *Controller) StartGet(ctx router.Context) error {
	provider := ctx.Param("provider")

	authURL, err := c.Auth.BuildAuthorizationURL(ctx.Context(), provider)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(authURL, http.StatusSeeOther)
}

// CallbackGet completes the provider callback. When the flow produced a
// redirect, successful or not, the browser is sent there; only state
// failures surface as HTTP errors, since no safe redirect target exists.
func (c *Controller) CallbackGet(ctx router.Context) error {
	provider := ctx.Param("provider")
	code := ctx.Query("code", "")
	state := ctx.Query("state", "")

	result, err := c.Auth.HandleCallback(ctx.Context(), provider, code, state)
	if err != nil {
		c.Logger.Warn("sso callback failed for %s: %v", provider, err)
		if result != nil && result.RedirectURL != "" {
			return ctx.Redirect(result.RedirectURL, http.StatusSeeOther)
		}
		return c.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(result.RedirectURL, http.StatusSeeOther)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutGet starts a provider-side logout.
func (c *Controller) LogoutGet(ctx router.Context) error {
	provider := ctx.Param("provider")

	refresh := ctx.Query("refresh_token", "")
	if refresh == "" {
		payload := new(logoutRequest)
		if err := ctx.Bind(payload); err == nil {
			refresh = payload.RefreshToken
		}
	}
	if refresh == "" {
		return c.ErrorHandler(ctx, errors.New("refresh_token is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	logoutURL, err := c.Auth.BuildLogoutURL(ctx.Context(), provider, refresh)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(logoutURL, http.StatusSeeOther)
}

// LogoutCallbackGet finishes a provider logout and forwards the browser to
// the configured afterLogoutUrl when one exists.
func (c *Controller) LogoutCallbackGet(ctx router.Context) error {
	state := ctx.Query("state", "")

	redirect, err := c.Auth.HandleLogoutCallback(ctx.Context(), state)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if redirect != "" {
		return ctx.Redirect(redirect, http.StatusSeeOther)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	return ctx.JSON(code, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"category":  richErr.Category,
			"text_code": richErr.TextCode,
		},
	})
}
