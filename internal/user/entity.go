// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// ProviderGoogle is the only external identity provider currently linked
// to accounts through the google_id column.
const ProviderGoogle = "google"

type User struct {
	ID                    string     `db:"id"`
	GoogleID              *string    `db:"google_id"`
	Email                 string     `db:"email"`
	Name                  string     `db:"name"`
	PasswordHash          string     `db:"password_hash"`
	EmailVerified         bool       `db:"email_verified"`
	VerificationCodeHash  *string    `db:"email_verification_token"`
	VerificationExpiresAt *time.Time `db:"email_verification_token_expires"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
	DeletedAt             *time.Time `db:"deleted_at"`
}

// HasPassword is false for accounts created through an external provider.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) HasPendingCode() bool {
	return u.VerificationCodeHash != nil && u.VerificationExpiresAt != nil
}
