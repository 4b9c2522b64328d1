// AngelaMos | 2026
// issuer_test.go

package verification_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/user/usertest"
	"github.com/carterperez-dev/courseware/internal/verification"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setup(t *testing.T) (*verification.Issuer, *usertest.Repository, *clock, string) {
	t.Helper()

	repo := usertest.NewRepository()
	repo.Put(&user.User{ID: "u-1", Email: "ada@example.com", Name: "Ada"})

	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	issuer := verification.NewIssuer(repo, verification.WithClock(clk.Now))

	return issuer, repo, clk, "u-1"
}

func TestGenerateCodeRange(t *testing.T) {
	for range 2000 {
		code, err := verification.GenerateCode(rand.Reader)
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestGenerateCodeLowerBound(t *testing.T) {
	code, err := verification.GenerateCode(bytes.NewReader(make([]byte, 64)))
	require.NoError(t, err)
	assert.Equal(t, "100000", code)
}

func TestIssueStoresHashAndExpiry(t *testing.T) {
	issuer, repo, clk, id := setup(t)

	code, err := issuer.Issue(context.Background(), id)
	require.NoError(t, err)

	stored, ok := repo.Snapshot(id)
	require.True(t, ok)
	require.NotNil(t, stored.VerificationCodeHash)
	assert.NotEqual(t, code, *stored.VerificationCodeHash)
	assert.Equal(t, core.HashToken(code), *stored.VerificationCodeHash)
	assert.Equal(t, clk.Now().Add(15*time.Minute), *stored.VerificationExpiresAt)
}

func TestVerifyWithinWindow(t *testing.T) {
	issuer, repo, clk, id := setup(t)
	ctx := context.Background()

	code, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	clk.Advance(14*time.Minute + 59*time.Second)

	outcome, err := issuer.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, verification.Verified, outcome)

	stored, _ := repo.Snapshot(id)
	assert.True(t, stored.EmailVerified)
	assert.Nil(t, stored.VerificationCodeHash)
}

func TestVerifyAtExpiryBoundary(t *testing.T) {
	issuer, repo, clk, id := setup(t)
	ctx := context.Background()

	code, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	clk.Advance(15 * time.Minute)

	outcome, err := issuer.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, verification.Expired, outcome)

	stored, _ := repo.Snapshot(id)
	assert.False(t, stored.EmailVerified)
	assert.NotNil(t, stored.VerificationCodeHash)
}

func TestVerifyMismatchDoesNotConsume(t *testing.T) {
	issuer, _, _, id := setup(t)
	ctx := context.Background()

	code, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	outcome, err := issuer.Verify(ctx, id, wrongCode(code))
	require.NoError(t, err)
	assert.Equal(t, verification.Mismatch, outcome)

	outcome, err = issuer.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, verification.Verified, outcome)
}

func TestVerifyIsOneTime(t *testing.T) {
	issuer, _, _, id := setup(t)
	ctx := context.Background()

	code, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	outcome, err := issuer.Verify(ctx, id, code)
	require.NoError(t, err)
	require.Equal(t, verification.Verified, outcome)

	outcome, err = issuer.Verify(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, verification.Mismatch, outcome)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	issuer, _, _, id := setup(t)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	var second string
	for {
		second, err = issuer.Issue(ctx, id)
		require.NoError(t, err)
		if second != first {
			break
		}
	}

	outcome, err := issuer.Verify(ctx, id, first)
	require.NoError(t, err)
	assert.Equal(t, verification.Mismatch, outcome)

	outcome, err = issuer.Verify(ctx, id, second)
	require.NoError(t, err)
	assert.Equal(t, verification.Verified, outcome)
}

func TestVerifyWithoutPendingCode(t *testing.T) {
	issuer, _, _, id := setup(t)

	outcome, err := issuer.Verify(context.Background(), id, "123456")
	require.NoError(t, err)
	assert.Equal(t, verification.Mismatch, outcome)
}

func TestVerifyUnknownUser(t *testing.T) {
	issuer, _, _, _ := setup(t)

	_, err := issuer.Verify(context.Background(), "ghost", "123456")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = issuer.Issue(context.Background(), "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestVerifyConcurrentSingleSuccess(t *testing.T) {
	issuer, _, _, id := setup(t)
	ctx := context.Background()

	code, err := issuer.Issue(ctx, id)
	require.NoError(t, err)

	const n = 16
	outcomes := make([]verification.Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], _ = issuer.Verify(ctx, id, code)
		}()
	}
	wg.Wait()

	verified := 0
	for _, o := range outcomes {
		if o == verification.Verified {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
}

func TestCustomTTL(t *testing.T) {
	repo := usertest.NewRepository()
	repo.Put(&user.User{ID: "u-1", Email: "a@b.c"})
	clk := &clock{t: time.Now()}

	issuer := verification.NewIssuer(repo,
		verification.WithClock(clk.Now),
		verification.WithTTL(time.Minute),
	)

	code, err := issuer.Issue(context.Background(), "u-1")
	require.NoError(t, err)

	stored, _ := repo.Snapshot("u-1")
	require.NotNil(t, stored.VerificationExpiresAt)
	assert.True(t, stored.VerificationExpiresAt.Equal(clk.Now().Add(time.Minute)))

	clk.Advance(time.Minute)
	outcome, err := issuer.Verify(context.Background(), "u-1", code)
	require.NoError(t, err)
	assert.Equal(t, verification.Expired, outcome)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "verified", verification.Verified.String())
	assert.Equal(t, "expired", verification.Expired.String())
	assert.Equal(t, "mismatch", verification.Mismatch.String())
}

func wrongCode(code string) string {
	if code == "999999" {
		return "100000"
	}
	n, _ := strconv.Atoi(code)
	return strconv.Itoa(n + 1)
}

func TestIssueWithInjectedRandom(t *testing.T) {
	repo := usertest.NewRepository()
	repo.Put(&user.User{ID: "u-1", Email: "ada@example.com", Name: "Ada"})

	issuer := verification.NewIssuer(
		repo,
		verification.WithRandom(bytes.NewReader(make([]byte, 3))),
	)

	code, err := issuer.Issue(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "100000", code)

	_, err = issuer.Issue(context.Background(), "u-1")
	require.Error(t, err, "an exhausted random source must fail issuance")
}
