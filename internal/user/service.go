// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/middleware"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateLocal stores a password account with an unverified email.
func (s *Service) CreateLocal(
	ctx context.Context,
	in NewLocalUser,
) (*User, error) {
	if in.PasswordHash == "" {
		return nil, fmt.Errorf(
			"create local user: empty password hash: %w",
			core.ErrInvalidInput,
		)
	}

	user := &User{
		ID:            uuid.New().String(),
		Email:         NormalizeEmail(in.Email),
		Name:          in.Name,
		PasswordHash:  in.PasswordHash,
		EmailVerified: false,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// CreateExternal stores an account asserted by an identity provider. The
// provider vouches for the email, so it starts verified and has no password.
func (s *Service) CreateExternal(
	ctx context.Context,
	in NewExternalUser,
) (*User, error) {
	if in.Provider != ProviderGoogle {
		return nil, fmt.Errorf(
			"create external user: unsupported provider %q: %w",
			in.Provider,
			core.ErrInvalidInput,
		)
	}
	if in.ExternalID == "" || in.Email == "" {
		return nil, fmt.Errorf(
			"create external user: missing id or email: %w",
			core.ErrInvalidInput,
		)
	}

	externalID := in.ExternalID
	user := &User{
		ID:            uuid.New().String(),
		GoogleID:      &externalID,
		Email:         NormalizeEmail(in.Email),
		Name:          in.Name,
		EmailVerified: true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) FindByExternalID(
	ctx context.Context,
	provider, externalID string,
) (*User, error) {
	return s.repo.FindByExternalID(ctx, provider, externalID)
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) DeleteMe(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("delete me: %w", core.ErrUnauthorized)
	}

	return s.repo.SoftDelete(ctx, userID)
}

// LoadPrincipal turns a session's stored user id back into a principal.
// A user that no longer exists yields core.ErrNotFound.
func (s *Service) LoadPrincipal(
	ctx context.Context,
	userID string,
) (*middleware.Principal, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &middleware.Principal{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
	}, nil
}

var _ middleware.PrincipalLoader = (*Service)(nil)
