// AngelaMos | 2026
// memory.go

// Package usertest provides an in-memory user.Repository with the same
// uniqueness and conditional-update guarantees as the Postgres store.
package usertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/user"
)

type Repository struct {
	mu     sync.Mutex
	users  map[string]*user.User
	fail   map[string]error
	calls  map[string]int
	now    func() time.Time
	onCall func(op string)
}

func NewRepository() *Repository {
	return &Repository{
		users: make(map[string]*user.User),
		fail:  make(map[string]error),
		calls: make(map[string]int),
		now:   time.Now,
	}
}

// FailWith makes every subsequent call to op return err. A nil err clears it.
func (r *Repository) FailWith(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

// OnCall registers a hook run before each operation, outside the lock.
func (r *Repository) OnCall(fn func(op string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCall = fn
}

func (r *Repository) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Put stores u directly, bypassing uniqueness checks.
func (r *Repository) Put(u *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

// Snapshot returns a copy of the stored row, including soft-deleted ones.
func (r *Repository) Snapshot(id string) (*user.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *Repository) enter(op string) error {
	r.mu.Lock()
	hook := r.onCall
	r.mu.Unlock()

	if hook != nil {
		hook(op)
	}

	// On success the lock stays held for the caller to release.
	r.mu.Lock()
	r.calls[op]++
	if err := r.fail[op]; err != nil {
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *Repository) Create(_ context.Context, u *user.User) error {
	if err := r.enter("Create"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if u.GoogleID != nil && existing.GoogleID != nil &&
			*existing.GoogleID == *u.GoogleID {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		if existing.DeletedAt == nil && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}
	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}

	now := r.now()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*user.User, error) {
	if err := r.enter("GetByID"); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *Repository) GetByEmail(
	_ context.Context,
	email string,
) (*user.User, error) {
	if err := r.enter("GetByEmail"); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (r *Repository) FindByExternalID(
	_ context.Context,
	provider, externalID string,
) (*user.User, error) {
	if err := r.enter("FindByExternalID"); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	if provider != user.ProviderGoogle {
		return nil, fmt.Errorf(
			"find user by external id: %w",
			core.ErrInvalidInput,
		)
	}

	for _, u := range r.users {
		if u.DeletedAt == nil && u.GoogleID != nil && *u.GoogleID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find user by external id: %w", core.ErrNotFound)
}

func (r *Repository) UpdateVerification(
	_ context.Context,
	id, codeHash string,
	expiresAt time.Time,
) error {
	if err := r.enter("UpdateVerification"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	u, err := r.live(id, "update verification")
	if err != nil {
		return err
	}
	u.VerificationCodeHash = &codeHash
	u.VerificationExpiresAt = &expiresAt
	u.UpdatedAt = r.now()
	return nil
}

func (r *Repository) ConsumeVerification(
	_ context.Context,
	id, codeHash string,
	now time.Time,
) error {
	if err := r.enter("ConsumeVerification"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	u, err := r.live(id, "consume verification")
	if err != nil {
		return err
	}
	if u.VerificationCodeHash == nil || *u.VerificationCodeHash != codeHash ||
		u.VerificationExpiresAt == nil || !u.VerificationExpiresAt.After(now) {
		return fmt.Errorf("consume verification: %w", core.ErrNotFound)
	}

	u.EmailVerified = true
	u.VerificationCodeHash = nil
	u.VerificationExpiresAt = nil
	u.UpdatedAt = r.now()
	return nil
}

func (r *Repository) MarkVerified(_ context.Context, id string) error {
	if err := r.enter("MarkVerified"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	u, err := r.live(id, "mark verified")
	if err != nil {
		return err
	}
	u.EmailVerified = true
	u.VerificationCodeHash = nil
	u.VerificationExpiresAt = nil
	u.UpdatedAt = r.now()
	return nil
}

func (r *Repository) UpdatePassword(
	_ context.Context,
	id, passwordHash string,
) error {
	if err := r.enter("UpdatePassword"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	u, err := r.live(id, "update password")
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *Repository) SoftDelete(_ context.Context, id string) error {
	if err := r.enter("SoftDelete"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	u, err := r.live(id, "delete user")
	if err != nil {
		return err
	}
	now := r.now()
	u.DeletedAt = &now
	return nil
}

func (r *Repository) live(id, op string) (*user.User, error) {
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return u, nil
}

var _ user.Repository = (*Repository)(nil)
