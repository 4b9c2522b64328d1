// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

// NewLocalUser is the input for a password registration. PasswordHash is
// already hashed by the caller.
type NewLocalUser struct {
	Email        string
	Name         string
	PasswordHash string
}

type NewExternalUser struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
}

type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	GoogleLinked  bool      `json:"google_linked"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		GoogleLinked:  u.GoogleID != nil,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
