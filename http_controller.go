package identity

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Controller exposes the session operations over HTTP. It is deliberately
// thin: payload validation, claim extraction, and error shaping only. Route
// registration and middleware stay with the host application.
type Controller struct {
	Sessions     *SessionOrchestrator
	Credentials  *CredentialVerifier
	Codec        *TokenCodec
	Logger       Logger
	ErrorHandler func(router.Context, error) error

	// Claims extracts the caller's access claims from a request. The
	// default reads the Authorization bearer token through the codec.
	Claims func(router.Context) (*AccessClaims, error)
}

// ControllerOption mutates a Controller during construction.
type ControllerOption func(*Controller) *Controller

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerErrorHandler replaces the error response shaping.
func WithControllerErrorHandler(handler func(router.Context, error) error) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// NewController builds the HTTP controller.
func NewController(sessions *SessionOrchestrator, credentials *CredentialVerifier, codec *TokenCodec, opts ...ControllerOption) *Controller {
	c := &Controller{
		Sessions:    sessions,
		Credentials: credentials,
		Codec:       codec,
		Logger:      defLogger{},
	}

	c.ErrorHandler = c.defaultErrHandler
	c.Claims = c.bearerClaims

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterRoutes mounts the session endpoints on the host router.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Post("/auth/login", c.LoginPost).SetName("auth.login")
	app.Post("/auth/refresh", c.RefreshPost).SetName("auth.refresh")
	app.Post("/auth/logout", c.LogoutPost).SetName("auth.logout")
	app.Post("/auth/exchange", c.ExchangePost).SetName("auth.exchange")
	app.Post("/auth/impersonate", c.ImpersonatePost).SetName("auth.impersonate")
	app.Post("/auth/password", c.PasswordChangePost).SetName("auth.password")
	app.Post("/auth/password-reset", c.PasswordResetPost).SetName("auth.password-reset")
	app.Post("/auth/password-reset/confirm", c.PasswordResetConfirmPost).SetName("auth.password-reset.confirm")
	app.Get("/auth/check", c.CheckConfirmGet).SetName("auth.check")
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	pair, err := c.Sessions.Login(ctx.Context(), payload.Identifier, payload.Password, ctx.Header("User-Agent"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, pair)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (c *Controller) RefreshPost(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	pair, err := c.Sessions.Refresh(ctx.Context(), payload.RefreshToken, ctx.Header("User-Agent"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, pair)
}

func (c *Controller) LogoutPost(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if err := c.Sessions.Logout(ctx.Context(), payload.RefreshToken); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

type ExchangeRequest struct {
	Code string `json:"code"`
}

func (r ExchangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
	)
}

func (c *Controller) ExchangePost(ctx router.Context) error {
	payload := new(ExchangeRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	pair, err := c.Sessions.ExchangeCode(ctx.Context(), payload.Code, ctx.Header("User-Agent"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, pair)
}

type ImpersonateRequest struct {
	TargetUserID   string   `json:"target_user_id"`
	OrgPermissions []string `json:"org_permissions,omitempty"`
}

func (r ImpersonateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TargetUserID, validation.Required, validation.By(func(v any) error {
			s, _ := v.(string)
			_, err := uuid.Parse(s)
			return err
		})),
	)
}

func (c *Controller) ImpersonatePost(ctx router.Context) error {
	claims, err := c.Claims(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	payload := new(ImpersonateRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	access, err := c.Sessions.Impersonate(ctx.Context(), claims, ImpersonationRequest{
		TargetUserID:   payload.TargetUserID,
		OrgPermissions: payload.OrgPermissions,
	})
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"access_token": access,
	})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 0)),
	)
}

func (c *Controller) PasswordChangePost(ctx router.Context) error {
	claims, err := c.Claims(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return c.ErrorHandler(ctx, ErrTokenMalformed.Clone())
	}

	payload := new(ChangePasswordRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if err := c.Credentials.ChangePassword(ctx.Context(), userID, payload.CurrentPassword, payload.NewPassword); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

type PasswordResetRequest struct {
	Identifier string `json:"identifier"`
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
	)
}

func (c *Controller) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if _, err := c.Credentials.RequestPasswordReset(ctx.Context(), payload.Identifier); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"status": "ok",
	})
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 0)),
	)
}

func (c *Controller) PasswordResetConfirmPost(ctx router.Context) error {
	payload := new(PasswordResetConfirmRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if err := c.Credentials.ConfirmPasswordReset(ctx.Context(), payload.Token, payload.NewPassword); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) CheckConfirmGet(ctx router.Context) error {
	value := ctx.Query("token", "")
	if value == "" {
		return c.ErrorHandler(ctx, errors.New("token is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	result, err := c.Sessions.ConfirmCheckToken(ctx.Context(), value)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if result.RedirectURL != "" && (result.Status == CheckValid || result.Status == CheckAlreadyChecked) {
		return ctx.Redirect(result.RedirectURL, http.StatusSeeOther)
	}

	return ctx.JSON(http.StatusOK, result)
}

type bindable interface {
	Validate() error
}

func (c *Controller) bind(ctx router.Context, payload bindable) error {
	if err := ctx.Bind(payload); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid request payload").
			WithCode(errors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "request validation failed").
			WithCode(errors.CodeBadRequest)
	}
	return nil
}

// bearerClaims decodes the Authorization header through the codec.
func (c *Controller) bearerClaims(ctx router.Context) (*AccessClaims, error) {
	header := ctx.Header("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, errors.New("missing bearer token", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	return c.Codec.DecodeAccessToken(ctx.Context(), token, DecodeOptions{})
}

func (c *Controller) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	c.Logger.Warn("request error: %s category=%s details=%s",
		richErr.Message, richErr.Category, print.MaybePrettyJSON(richErr.Metadata))

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
