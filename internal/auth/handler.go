// AngelaMos | 2026
// handler.go

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/identity"
	"github.com/carterperez-dev/courseware/internal/middleware"
	"github.com/carterperez-dev/courseware/internal/oauth"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/verification"
)

// ExternalProvider is the browser side of an OAuth handshake.
type ExternalProvider interface {
	Begin(w http.ResponseWriter) (string, error)
	CheckState(w http.ResponseWriter, r *http.Request) error
	Exchange(ctx context.Context, code string) (*identity.ExternalProfile, error)
}

type HandlerConfig struct {
	Service         *Service
	Google          ExternalProvider
	SuccessRedirect string
	FailureRedirect string
	Logger          *slog.Logger
}

type Handler struct {
	service         *Service
	google          ExternalProvider
	validator       *validator.Validate
	successRedirect string
	failureRedirect string
	logger          *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:         cfg.Service,
		google:          cfg.Google,
		validator:       core.NewValidator(),
		successRedirect: cfg.SuccessRedirect,
		failureRedirect: cfg.FailureRedirect,
		logger:          logger.With("component", "auth"),
	}
}

// RegisterRoutes mounts /auth. strict wraps the endpoints that accept
// guesses (codes, passwords, new accounts).
func (h *Handler) RegisterRoutes(
	r chi.Router,
	strict func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", h.BeginGoogle)
		r.Get("/google/callback", h.GoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(strict)
			r.Post("/register", h.Register)
			r.Post("/verify", h.Verify)
			r.Post("/verify/resend", h.Resend)
			r.Post("/login", h.Login)
		})

		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			r.Post("/token", h.Token)
			r.Get("/me", h.GetMe)
		})
	})
}

func (h *Handler) BeginGoogle(w http.ResponseWriter, r *http.Request) {
	target, err := h.google.Begin(w)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallback finishes the handshake. Anything the provider got wrong
// sends the browser to the failure page; a forged state is refused.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.google.CheckState(w, r); err != nil {
		core.Forbidden(w, "invalid oauth state")
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.WarnContext(ctx, "oauth provider refused login",
			"error", providerErr,
		)
		h.redirectFailure(w, r)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectFailure(w, r)
		return
	}

	profile, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.logger.WarnContext(ctx, "oauth exchange failed", "error", err)
		h.redirectFailure(w, r)
		return
	}

	res, err := h.service.CompleteExternalLogin(ctx, *profile)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidProfile) ||
			errors.Is(err, identity.ErrExternalIDRetired) {
			h.logger.WarnContext(ctx, "oauth profile rejected", "error", err)
			h.redirectFailure(w, r)
			return
		}
		core.InternalServerError(w, err)
		return
	}

	middleware.CurrentSession(ctx).Login(res.User.ID)
	http.Redirect(w, r, h.successRedirect, http.StatusFound)
}

func (h *Handler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.failureRedirect, http.StatusFound)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeAndValidate(w, r, h.validator, &req); err != nil {
		core.JSONError(w, err)
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeCodeError(w, err)
		return
	}

	core.Created(w, resp)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := core.DecodeAndValidate(w, r, h.validator, &req); err != nil {
		core.JSONError(w, err)
		return
	}

	outcome, err := h.service.VerifyCode(r.Context(), req.UserID, req.Code)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	switch outcome {
	case verification.Verified:
		core.OK(w, VerifyResponse{Status: outcome.String()})
	case verification.Expired:
		core.JSONError(w, core.NewAppError(
			nil,
			"verification code has expired",
			http.StatusGone,
			"EXPIRED",
		))
	default:
		core.JSONError(w, core.NewAppError(
			nil,
			"verification code does not match",
			http.StatusUnprocessableEntity,
			"MISMATCH",
		))
	}
}

func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if err := core.DecodeAndValidate(w, r, h.validator, &req); err != nil {
		core.JSONError(w, err)
		return
	}

	if err := h.service.RequestNewCode(r.Context(), req.UserID); err != nil {
		h.writeCodeError(w, err)
		return
	}

	core.Accepted(w, nil)
}

func (h *Handler) writeCodeError(w http.ResponseWriter, err error) {
	var delivery *DeliveryFailedError
	switch {
	case errors.Is(err, ErrEmailExists):
		core.JSONError(w, core.DuplicateError("email"))
	case errors.Is(err, ErrAlreadyVerified):
		core.JSONError(w, core.ConflictError(
			"email is already verified",
			"ALREADY_VERIFIED",
		))
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.As(err, &delivery):
		core.JSONError(w, core.NewAppError(
			err,
			"account created but the verification email could not be sent",
			http.StatusInternalServerError,
			"EMAIL_DELIVERY_FAILED",
		).WithDetails(map[string]any{"user_id": delivery.UserID}))
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeAndValidate(w, r, h.validator, &req); err != nil {
		core.JSONError(w, err)
		return
	}

	u, err := h.service.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			core.JSONError(w, core.UnauthorizedError("invalid email or password"))
		case errors.Is(err, ErrEmailNotVerified):
			core.JSONError(w, core.NewAppError(
				core.ErrForbidden,
				"email address has not been verified",
				http.StatusForbidden,
				"EMAIL_NOT_VERIFIED",
			))
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	token, err := h.service.IssueToken(r.Context(), u.ID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	middleware.CurrentSession(r.Context()).Login(u.ID)

	core.OK(w, LoginResponse{
		User:  user.ToUserResponse(u),
		Token: *token,
	})
}

// Logout ends the session and revokes the bearer token if one was sent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Logout(ctx, middleware.GetClaims(ctx)); err != nil {
		core.InternalServerError(w, err)
		return
	}

	if sess := middleware.CurrentSession(ctx); sess != nil {
		sess.Destroy()
	}

	core.NoContent(w)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.IssueToken(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, token)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	core.OK(w, PrincipalResponse{
		ID:            p.UserID,
		Email:         p.Email,
		Name:          p.Name,
		EmailVerified: p.EmailVerified,
	})
}

var _ ExternalProvider = (*oauth.Google)(nil)
