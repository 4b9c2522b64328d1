// AngelaMos | 2026
// resolver.go

// Package identity maps a profile asserted by an external identity
// provider onto exactly one local user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/user"
)

var (
	ErrInvalidProfile = fmt.Errorf("invalid external profile: %w", core.ErrInvalidInput)

	// ErrExternalIDRetired means the external id belongs to a deleted
	// account. It is never rebound to a new user.
	ErrExternalIDRetired = errors.New("external id belongs to a deleted account")
)

type Email struct {
	Value string
}

// ExternalProfile is what the provider asserted about the user. The
// assertion is trusted as-is.
type ExternalProfile struct {
	Provider    string
	ExternalID  string
	Emails      []Email
	DisplayName string
}

// PrimaryEmail is the first email the provider listed.
func (p ExternalProfile) PrimaryEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0].Value
}

func (p ExternalProfile) Validate() error {
	if p.Provider == "" || p.ExternalID == "" {
		return fmt.Errorf("%w: missing provider or id", ErrInvalidProfile)
	}
	if p.PrimaryEmail() == "" {
		return fmt.Errorf("%w: missing email", ErrInvalidProfile)
	}
	return nil
}

type Match int

const (
	MatchExternalID Match = iota + 1
	MatchEmail
	MatchCreated
)

func (m Match) String() string {
	switch m {
	case MatchExternalID:
		return "external_id"
	case MatchEmail:
		return "email"
	case MatchCreated:
		return "created"
	default:
		return "unknown"
	}
}

type Resolution struct {
	User  *user.User
	Match Match
}

type Store interface {
	FindByExternalID(ctx context.Context, provider, externalID string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	CreateExternal(ctx context.Context, in user.NewExternalUser) (*user.User, error)
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve looks the profile up by external id, then by primary email, and
// creates a verified passwordless user when neither matches. An email
// match does not attach the external id to the existing account.
func (r *Resolver) Resolve(
	ctx context.Context,
	profile ExternalProfile,
) (*Resolution, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	ctx, span := core.StartSpan(ctx, "identity.Resolve",
		attribute.String("provider", profile.Provider),
	)

	res, err := r.resolve(ctx, profile)
	core.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("match", res.Match.String()))
	return res, nil
}

func (r *Resolver) resolve(
	ctx context.Context,
	profile ExternalProfile,
) (*Resolution, error) {
	res, err := r.lookup(ctx, profile)
	if err != nil || res != nil {
		return res, err
	}

	created, err := r.store.CreateExternal(ctx, user.NewExternalUser{
		Provider:   profile.Provider,
		ExternalID: profile.ExternalID,
		Email:      profile.PrimaryEmail(),
		Name:       profile.DisplayName,
	})
	if err == nil {
		return &Resolution{User: created, Match: MatchCreated}, nil
	}
	if !errors.Is(err, core.ErrDuplicateKey) {
		return nil, fmt.Errorf("create external user: %w", err)
	}

	// a concurrent login created the user first, or the id is retired
	res, err = r.lookup(ctx, profile)
	if err != nil {
		return nil, err
	}
	if res == nil {
		r.logger.WarnContext(ctx, "external login for deleted account",
			"provider", profile.Provider,
		)
		return nil, fmt.Errorf("resolve after conflict: %w", ErrExternalIDRetired)
	}
	return res, nil
}

// lookup returns nil, nil when neither step matches.
func (r *Resolver) lookup(
	ctx context.Context,
	profile ExternalProfile,
) (*Resolution, error) {
	u, found, err := r.byExternalID(ctx, profile)
	if err != nil {
		return nil, err
	}
	if found {
		return &Resolution{User: u, Match: MatchExternalID}, nil
	}

	u, found, err = r.byEmail(ctx, profile.PrimaryEmail())
	if err != nil {
		return nil, err
	}
	if found {
		r.logger.InfoContext(ctx, "external login matched existing account by email",
			"user_id", u.ID,
			"provider", profile.Provider,
			"link_skipped", true,
		)
		return &Resolution{User: u, Match: MatchEmail}, nil
	}

	return nil, nil
}

func (r *Resolver) byExternalID(
	ctx context.Context,
	profile ExternalProfile,
) (*user.User, bool, error) {
	u, err := r.store.FindByExternalID(ctx, profile.Provider, profile.ExternalID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find by external id: %w", err)
	}
	return u, true, nil
}

func (r *Resolver) byEmail(
	ctx context.Context,
	email string,
) (*user.User, bool, error) {
	u, err := r.store.GetByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find by email: %w", err)
	}
	return u, true, nil
}
