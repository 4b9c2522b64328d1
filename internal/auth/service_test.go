// AngelaMos | 2026
// service_test.go

package auth_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/courseware/internal/auth"
	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/identity"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/verification"
)

var sixDigits = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func TestRegisterThenVerifyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", resp.Email)

	stored, ok := f.repo.Snapshot(resp.ID)
	require.True(t, ok)
	assert.False(t, stored.EmailVerified)
	assert.Equal(t, "Ann Lee", stored.Name)
	assert.NotEqual(t, "Secret123!", stored.PasswordHash)
	require.NotNil(t, stored.VerificationExpiresAt)
	assert.WithinDuration(
		t,
		f.clock.Now().Add(15*time.Minute),
		*stored.VerificationExpiresAt,
		time.Second,
	)

	sent := f.mailer.last(t)
	assert.Equal(t, "ann@x.com", sent.To)
	assert.Regexp(t, sixDigits, sent.Code)

	outcome, err := f.service.VerifyCode(ctx, resp.ID, sent.Code)
	require.NoError(t, err)
	assert.Equal(t, verification.Verified, outcome)

	outcome, err = f.service.VerifyCode(ctx, resp.ID, sent.Code)
	require.NoError(t, err)
	assert.Equal(t, verification.Mismatch, outcome)

	stored, _ = f.repo.Snapshot(resp.ID)
	assert.True(t, stored.EmailVerified)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	req := annRequest()
	req.Email = "  Ann@X.com "
	resp, err := f.service.Register(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "ann@x.com", resp.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)

	req := annRequest()
	req.Email = "ANN@x.com"
	_, err = f.service.Register(ctx, req)

	assert.ErrorIs(t, err, auth.ErrEmailExists)
	assert.Equal(t, 1, f.repo.Len())
	assert.Equal(t, 1, f.mailer.count())
}

func TestRegisterDeliveryFailureKeepsUser(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail(errMailDown)

	_, err := f.service.Register(context.Background(), annRequest())

	var delivery *auth.DeliveryFailedError
	require.ErrorAs(t, err, &delivery)
	assert.ErrorIs(t, err, auth.ErrDeliveryFailed)
	assert.ErrorIs(t, err, errMailDown)

	stored, ok := f.repo.Snapshot(delivery.UserID)
	require.True(t, ok)
	assert.False(t, stored.EmailVerified)
	assert.True(t, stored.HasPendingCode())
}

func TestRegisterStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.FailWith("Create", assert.AnError)

	_, err := f.service.Register(context.Background(), annRequest())

	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, auth.ErrEmailExists)
	assert.Zero(t, f.mailer.count())
}

func TestRequestNewCodeReplacesOldCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)
	oldCode := f.mailer.last(t).Code

	require.NoError(t, f.service.RequestNewCode(ctx, resp.ID))
	newCode := f.mailer.last(t).Code
	assert.Equal(t, 2, f.mailer.count())

	if oldCode != newCode {
		outcome, err := f.service.VerifyCode(ctx, resp.ID, oldCode)
		require.NoError(t, err)
		assert.Equal(t, verification.Mismatch, outcome)
	}

	outcome, err := f.service.VerifyCode(ctx, resp.ID, newCode)
	require.NoError(t, err)
	assert.Equal(t, verification.Verified, outcome)
}

func TestRequestNewCodeRejectsVerifiedUser(t *testing.T) {
	f := newFixture(t)
	resp := f.registerVerified(t)

	err := f.service.RequestNewCode(context.Background(), resp.ID)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

func TestRequestNewCodeUnknownUser(t *testing.T) {
	f := newFixture(t)

	err := f.service.RequestNewCode(
		context.Background(),
		"6f1c2b9e-4c1d-4c55-9c7e-0d9b8d3f8a10",
	)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestVerifyCodeExpiresAtFifteenMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)
	code := f.mailer.last(t).Code

	f.clock.Advance(15 * time.Minute)

	outcome, err := f.service.VerifyCode(ctx, resp.ID, code)
	require.NoError(t, err)
	assert.Equal(t, verification.Expired, outcome)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.registerVerified(t)

	u, err := f.service.Login(ctx, auth.LoginRequest{
		Email:    "ANN@x.com",
		Password: "Secret123!",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.ID, u.ID)

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "ann@x.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "nobody@x.com",
		Password: "Secret123!",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "ann@x.com",
		Password: "Secret123!",
	})
	assert.ErrorIs(t, err, auth.ErrEmailNotVerified)

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "ann@x.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginRejectsPasswordlessAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CompleteExternalLogin(ctx, identity.ExternalProfile{
		Provider:    user.ProviderGoogle,
		ExternalID:  "g-1",
		Emails:      []identity.Email{{Value: "grace@x.com"}},
		DisplayName: "Grace",
	})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "grace@x.com",
		Password: "",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginUpgradesHashCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("Secret123!"), bcrypt.MinCost+1)
	require.NoError(t, err)
	f.repo.Put(&user.User{
		ID:            "u-old",
		Email:         "old@x.com",
		Name:          "Old Hash",
		PasswordHash:  string(hash),
		EmailVerified: true,
	})

	_, err = f.service.Login(ctx, auth.LoginRequest{
		Email:    "old@x.com",
		Password: "Secret123!",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.repo.Calls("UpdatePassword"))
	stored, _ := f.repo.Snapshot("u-old")
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.service.IssueToken(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)

	claims, err := f.jwt.VerifyAccessToken(ctx, token.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, claims))

	_, err = f.jwt.VerifyAccessToken(ctx, token.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestLogoutWithoutTokenIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.service.Logout(context.Background(), nil))
	assert.Empty(t, f.mr.Keys())
}

func TestCompleteExternalLoginMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.registerVerified(t)

	res, err := f.service.CompleteExternalLogin(ctx, identity.ExternalProfile{
		Provider:    user.ProviderGoogle,
		ExternalID:  "g-ann",
		Emails:      []identity.Email{{Value: "ann@x.com"}},
		DisplayName: "Ann Lee",
	})
	require.NoError(t, err)

	assert.Equal(t, identity.MatchEmail, res.Match)
	assert.Equal(t, local.ID, res.User.ID)
	assert.Equal(t, 1, f.repo.Len())
}
