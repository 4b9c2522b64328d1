// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/identity"
	"github.com/carterperez-dev/courseware/internal/mail"
	"github.com/carterperez-dev/courseware/internal/metrics"
	"github.com/carterperez-dev/courseware/internal/middleware"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/verification"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrDeliveryFailed     = errors.New("verification email delivery failed")
)

// DeliveryFailedError means the account exists but its verification code
// could not be handed to the mailer. The account is kept.
type DeliveryFailedError struct {
	UserID string
	Err    error
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("deliver code for user %s: %v", e.UserID, e.Err)
}

func (e *DeliveryFailedError) Unwrap() error {
	return e.Err
}

func (e *DeliveryFailedError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

type UserStore interface {
	CreateLocal(ctx context.Context, in user.NewLocalUser) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type ServiceConfig struct {
	Users    UserStore
	Hasher   *core.PasswordHasher
	Issuer   *verification.Issuer
	Mailer   mail.Sender
	Resolver *identity.Resolver
	Tokens   *JWTManager
	Revoker  TokenRevoker
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Service struct {
	users    UserStore
	hasher   *core.PasswordHasher
	issuer   *verification.Issuer
	mailer   mail.Sender
	resolver *identity.Resolver
	tokens   *JWTManager
	revoker  TokenRevoker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:    cfg.Users,
		hasher:   cfg.Hasher,
		issuer:   cfg.Issuer,
		mailer:   cfg.Mailer,
		resolver: cfg.Resolver,
		tokens:   cfg.Tokens,
		revoker:  cfg.Revoker,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "auth"),
	}
}

// Register creates an unverified local account and sends it a code. A
// delivery failure is reported as *DeliveryFailedError and does not undo
// the account.
func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
) (_ *RegisterResponse, err error) {
	ctx, span := core.StartSpan(ctx, "auth.register")
	defer func() { core.EndSpan(span, err) }()

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.users.CreateLocal(ctx, user.NewLocalUser{
		Email:        req.Email,
		Name:         fullName(req.FirstName, req.LastName),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			s.metrics.Registration("duplicate")
			return nil, ErrEmailExists
		}
		s.metrics.Registration("error")
		return nil, fmt.Errorf("create user: %w", err)
	}
	core.AddSpanEvent(ctx, "user_created")

	if err := s.sendCode(ctx, u); err != nil {
		s.metrics.Registration("delivery_failed")
		return nil, err
	}

	s.metrics.Registration("created")
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)

	return &RegisterResponse{ID: u.ID, Email: u.Email}, nil
}

// RequestNewCode replaces any pending code for userID and sends the new
// one.
func (s *Service) RequestNewCode(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.EmailVerified {
		return ErrAlreadyVerified
	}

	return s.sendCode(ctx, u)
}

func (s *Service) sendCode(ctx context.Context, u *user.User) error {
	code, err := s.issuer.Issue(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, u.Email, code); err != nil {
		s.metrics.MailDelivery("failed")
		s.logger.ErrorContext(ctx, "verification code delivery failed",
			"user_id", u.ID,
			"error", err,
		)
		return &DeliveryFailedError{UserID: u.ID, Err: err}
	}

	s.metrics.MailDelivery("sent")
	core.AddSpanEvent(ctx, "code_sent")
	return nil
}

func (s *Service) VerifyCode(
	ctx context.Context,
	userID, code string,
) (verification.Outcome, error) {
	outcome, err := s.issuer.Verify(ctx, userID, code)
	if err != nil {
		return outcome, err
	}

	s.metrics.Verification(outcome.String())
	if outcome == verification.Verified {
		s.logger.InfoContext(ctx, "email verified", "user_id", userID)
	}

	return outcome, nil
}

// Login checks a password. Unknown emails and accounts without a password
// cost the same bcrypt comparison as a real mismatch.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*user.User, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	var hash string
	if u != nil {
		hash = u.PasswordHash
	}

	valid, err := s.hasher.Verify(ctx, req.Password, hash)
	if err != nil {
		return nil, err
	}

	if !valid {
		s.metrics.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !u.EmailVerified {
		s.metrics.Login("unverified")
		return nil, ErrEmailNotVerified
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u.ID, req.Password)
	}

	s.metrics.Login("success")
	return u, nil
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed",
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *Service) IssueToken(_ context.Context, userID string) (*TokenResponse, error) {
	issued, err := s.tokens.CreateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(issued.ExpiresAt).Seconds()),
		ExpiresAt:   issued.ExpiresAt,
	}, nil
}

// Logout revokes the presented bearer token, if any. Session teardown is
// left to the caller.
func (s *Service) Logout(
	ctx context.Context,
	claims *middleware.AccessTokenClaims,
) error {
	if claims == nil || s.revoker == nil {
		return nil
	}

	if err := s.revoker.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

func (s *Service) CompleteExternalLogin(
	ctx context.Context,
	profile identity.ExternalProfile,
) (*identity.Resolution, error) {
	res, err := s.resolver.Resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	s.metrics.IdentityResolution(profile.Provider, res.Match.String())
	return res, nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(
		strings.TrimSpace(first) + " " + strings.TrimSpace(last),
	)
}
