// AngelaMos | 2026
// jwt_test.go

package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/courseware/internal/auth"
	"github.com/carterperez-dev/courseware/internal/config"
	"github.com/carterperez-dev/courseware/internal/core"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            testSecret,
		AccessTokenExpire: 15 * time.Minute,
		Issuer:            "courseware",
		Audience:          "courseware-api",
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m, err := auth.NewJWTManager(jwtConfig(), nil)
	require.NoError(t, err)

	issued, err := m.CreateAccessToken("u-1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(issued.Token, "."), 3)

	claims, err := m.VerifyAccessToken(context.Background(), issued.Token)
	require.NoError(t, err)

	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt, time.Second)
}

func TestJWTRejectsWeakSecret(t *testing.T) {
	cfg := jwtConfig()
	cfg.Secret = "short"

	_, err := auth.NewJWTManager(cfg, nil)
	assert.Error(t, err)
}

func TestJWTExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	m, err := auth.NewJWTManager(jwtConfig(), nil, auth.WithJWTClock(clock))
	require.NoError(t, err)

	issued, err := m.CreateAccessToken("u-1")
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)

	_, err = m.VerifyAccessToken(context.Background(), issued.Token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestJWTRejectsForeignTokens(t *testing.T) {
	m, err := auth.NewJWTManager(jwtConfig(), nil)
	require.NoError(t, err)

	otherSecret := jwtConfig()
	otherSecret.Secret = strings.Repeat("x", 32)
	other, err := auth.NewJWTManager(otherSecret, nil)
	require.NoError(t, err)

	otherAudience := jwtConfig()
	otherAudience.Audience = "someone-else"
	foreign, err := auth.NewJWTManager(otherAudience, nil)
	require.NoError(t, err)

	for name, issuer := range map[string]*auth.JWTManager{
		"signature": other,
		"audience":  foreign,
	} {
		t.Run(name, func(t *testing.T) {
			issued, err := issuer.CreateAccessToken("u-1")
			require.NoError(t, err)

			_, err = m.VerifyAccessToken(context.Background(), issued.Token)
			assert.ErrorIs(t, err, core.ErrTokenInvalid)
		})
	}

	_, err = m.VerifyAccessToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTDenylist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.jwt.CreateAccessToken("u-1")
	require.NoError(t, err)

	require.NoError(t, f.denylist.Revoke(ctx, issued.TokenID, issued.ExpiresAt))

	revoked, err := f.denylist.IsRevoked(ctx, issued.TokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := f.mr.TTL("token:denylist:" + issued.TokenID)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 15*time.Minute)

	_, err = f.jwt.VerifyAccessToken(ctx, issued.Token)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestDenylistSkipsExpiredTokens(t *testing.T) {
	f := newFixture(t)

	err := f.denylist.Revoke(context.Background(), "old", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, f.mr.Keys())
}

func TestJWTDenylistUnavailable(t *testing.T) {
	f := newFixture(t)

	issued, err := f.jwt.CreateAccessToken("u-1")
	require.NoError(t, err)

	f.mr.SetError("LOADING")

	_, err = f.jwt.VerifyAccessToken(context.Background(), issued.Token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)
	assert.NotErrorIs(t, err, core.ErrTokenRevoked)
}
