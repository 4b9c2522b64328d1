// AngelaMos | 2026
// dto.go

package auth

import (
	"time"

	"github.com/carterperez-dev/courseware/internal/user"
)

// bcrypt ignores input past 72 bytes, so longer passwords are refused.
type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name"  validate:"required,min=1,max=100"`
	Email     string `json:"email"      validate:"required,email,max=255"`
	Password  string `json:"password"   validate:"required,min=8,max=72"`
}

type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type VerifyRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Code   string `json:"code"    validate:"required,len=6,numeric"`
}

type VerifyResponse struct {
	Status string `json:"status"`
}

type ResendRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LoginResponse struct {
	User  user.UserResponse `json:"user"`
	Token TokenResponse     `json:"token"`
}

type PrincipalResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}
