// AngelaMos | 2026
// issuer.go

// Package verification issues and checks six-digit email verification
// codes. Only a SHA-256 hash of the active code is stored; re-issuing
// replaces it and a successful check consumes it.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/user"
)

const (
	DefaultTTL = 15 * time.Minute

	codeFloor = 100000
	codeSpan  = 900000
)

type Outcome int

const (
	Mismatch Outcome = iota
	Expired
	Verified
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Expired:
		return "expired"
	default:
		return "mismatch"
	}
}

type Store interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	UpdateVerification(
		ctx context.Context,
		id, codeHash string,
		expiresAt time.Time,
	) error
	ConsumeVerification(
		ctx context.Context,
		id, codeHash string,
		now time.Time,
	) error
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		i.random = r
	}
}

type Issuer struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

func NewIssuer(store Store, opts ...Option) *Issuer {
	i := &Issuer{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GenerateCode returns a uniformly distributed code in [100000, 999999].
func GenerateCode(random io.Reader) (string, error) {
	n, err := rand.Int(random, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeFloor), nil
}

// Issue stores a fresh code for userID, replacing any pending one, and
// returns the plain code for delivery.
func (i *Issuer) Issue(ctx context.Context, userID string) (string, error) {
	code, err := GenerateCode(i.random)
	if err != nil {
		return "", err
	}

	expiresAt := i.now().Add(i.ttl)
	if err := i.store.UpdateVerification(
		ctx,
		userID,
		core.HashToken(code),
		expiresAt,
	); err != nil {
		return "", fmt.Errorf("issue code: %w", err)
	}

	core.AddSpanEvent(ctx, "verification.code_issued",
		attribute.String("user_id", userID),
	)

	return code, nil
}

// Verify checks code against the pending code for userID. A mismatch or
// an expired code leaves the stored code untouched. A code is rejected
// once the clock reaches its expiry.
func (i *Issuer) Verify(
	ctx context.Context,
	userID, code string,
) (Outcome, error) {
	u, err := i.store.GetByID(ctx, userID)
	if err != nil {
		return Mismatch, fmt.Errorf("verify code: %w", err)
	}

	if !u.HasPendingCode() {
		return Mismatch, nil
	}

	if !core.CompareTokenHash(code, *u.VerificationCodeHash) {
		return Mismatch, nil
	}

	now := i.now()
	if !now.Before(*u.VerificationExpiresAt) {
		return Expired, nil
	}

	err = i.store.ConsumeVerification(ctx, userID, *u.VerificationCodeHash, now)
	if errors.Is(err, core.ErrNotFound) {
		// consumed or replaced between the read and the update
		return Mismatch, nil
	}
	if err != nil {
		return Mismatch, fmt.Errorf("consume code: %w", err)
	}

	core.AddSpanEvent(ctx, "verification.code_consumed",
		attribute.String("user_id", userID),
	)

	return Verified, nil
}
