// AngelaMos | 2026
// memory_test.go

package usertest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/user/usertest"
)

func TestMarkVerifiedIsIdempotent(t *testing.T) {
	repo := usertest.NewRepository()
	ctx := context.Background()

	codeHash := "hash"
	expires := time.Now().Add(time.Minute)
	repo.Put(&user.User{
		ID:                    "u-1",
		Email:                 "ann@x.com",
		VerificationCodeHash:  &codeHash,
		VerificationExpiresAt: &expires,
	})

	require.NoError(t, repo.MarkVerified(ctx, "u-1"))
	require.NoError(t, repo.MarkVerified(ctx, "u-1"))
	assert.Equal(t, 2, repo.Calls("MarkVerified"))

	stored, ok := repo.Snapshot("u-1")
	require.True(t, ok)
	assert.True(t, stored.EmailVerified)
	assert.Nil(t, stored.VerificationCodeHash)
	assert.Nil(t, stored.VerificationExpiresAt)
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestMarkVerifiedSkipsDeletedUsers(t *testing.T) {
	repo := usertest.NewRepository()
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkVerified(ctx, "missing"), core.ErrNotFound)

	deletedAt := time.Now()
	repo.Put(&user.User{ID: "u-1", Email: "ann@x.com", DeletedAt: &deletedAt})
	require.ErrorIs(t, repo.MarkVerified(ctx, "u-1"), core.ErrNotFound)
}

func TestCreateKeepsGoogleIDBoundAfterDelete(t *testing.T) {
	repo := usertest.NewRepository()
	ctx := context.Background()

	googleID := "g-1"
	require.NoError(t, repo.Create(ctx, &user.User{
		ID:       "u-1",
		GoogleID: &googleID,
		Email:    "ann@x.com",
	}))
	require.NoError(t, repo.SoftDelete(ctx, "u-1"))

	err := repo.Create(ctx, &user.User{
		ID:       "u-2",
		GoogleID: &googleID,
		Email:    "ann@x.com",
	})
	require.ErrorIs(t, err, core.ErrDuplicateKey)

	require.NoError(t, repo.Create(ctx, &user.User{ID: "u-3", Email: "ann@x.com"}))
	assert.Equal(t, 2, repo.Len())
}
