// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/courseware/internal/core"
)

// Repository is the credential store. Uniqueness of email and google_id
// is enforced by the database, never by a read followed by a write.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*User, error)
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
	MarkVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
}

const userColumns = `
	id, google_id, email, name, password_hash, email_verified,
	email_verification_token, email_verification_token_expires,
	created_at, updated_at, deleted_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (
			id, google_id, email, name, password_hash, email_verified,
			email_verification_token, email_verification_token_expires
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, user, query,
		user.ID,
		user.GoogleID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		user.VerificationCodeHash,
		user.VerificationExpiresAt,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	query := `SELECT` + userColumns + `
		FROM users
		WHERE lower(email) = lower($1) AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &user, nil
}

func (r *repository) FindByExternalID(
	ctx context.Context,
	provider, externalID string,
) (*User, error) {
	if provider != ProviderGoogle {
		return nil, fmt.Errorf(
			"find user by external id: unsupported provider %q: %w",
			provider,
			core.ErrInvalidInput,
		)
	}

	query := `SELECT` + userColumns + `
		FROM users
		WHERE google_id = $1 AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(
			"find user by external id: %w",
			core.ErrNotFound,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("find user by external id: %w", err)
	}

	return &user, nil
}

func (r *repository) UpdateVerification(
	ctx context.Context,
	id, codeHash string,
	expiresAt time.Time,
) error {
	query := `
		UPDATE users
		SET email_verification_token = $2,
		    email_verification_token_expires = $3,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "update verification", query, id, codeHash, expiresAt)
}

// ConsumeVerification marks the email verified and clears the code in a
// single statement, only while the stored hash matches and is unexpired.
// Concurrent callers presenting the same code see exactly one success.
func (r *repository) ConsumeVerification(
	ctx context.Context,
	id, codeHash string,
	now time.Time,
) error {
	query := `
		UPDATE users
		SET email_verified = TRUE,
		    email_verification_token = NULL,
		    email_verification_token_expires = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND email_verification_token = $2
		  AND email_verification_token_expires > $3`

	return r.execOne(ctx, "consume verification", query, id, codeHash, now)
}

func (r *repository) MarkVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET email_verified = TRUE,
		    email_verification_token = NULL,
		    email_verification_token_expires = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "mark verified", query, id)
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "update password", query, id, passwordHash)
}

func (r *repository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "delete user", query, id)
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}
