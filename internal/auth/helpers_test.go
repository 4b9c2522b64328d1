// AngelaMos | 2026
// helpers_test.go

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/courseware/internal/auth"
	"github.com/carterperez-dev/courseware/internal/config"
	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/identity"
	"github.com/carterperez-dev/courseware/internal/metrics"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/user/usertest"
	"github.com/carterperez-dev/courseware/internal/verification"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var errMailDown = errors.New("mail relay down")

type sentCode struct {
	To   string
	Code string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *recordingMailer) SendVerificationCode(
	_ context.Context,
	to, code string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{To: to, Code: code})
	return nil
}

func (m *recordingMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) sentCode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no code was sent")
	return m.sent[len(m.sent)-1]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	service  *auth.Service
	users    *user.Service
	repo     *usertest.Repository
	mailer   *recordingMailer
	hasher   *core.PasswordHasher
	jwt      *auth.JWTManager
	denylist *auth.Denylist
	clock    *testClock
	redis    *redis.Client
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := usertest.NewRepository()
	users := user.NewService(repo)

	hasher, err := core.NewPasswordHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)

	clk := &testClock{t: time.Now().UTC()}
	denylist := auth.NewDenylist(client)

	jwtManager, err := auth.NewJWTManager(config.JWTConfig{
		Secret:            testSecret,
		AccessTokenExpire: 15 * time.Minute,
		Issuer:            "courseware-test",
		Audience:          "courseware-test",
	}, denylist)
	require.NoError(t, err)

	mailer := &recordingMailer{}

	svc := auth.NewService(auth.ServiceConfig{
		Users:    users,
		Hasher:   hasher,
		Issuer:   verification.NewIssuer(repo, verification.WithClock(clk.Now)),
		Mailer:   mailer,
		Resolver: identity.NewResolver(users, nil),
		Tokens:   jwtManager,
		Revoker:  denylist,
		Metrics:  metrics.New(),
	})

	return &fixture{
		service:  svc,
		users:    users,
		repo:     repo,
		mailer:   mailer,
		hasher:   hasher,
		jwt:      jwtManager,
		denylist: denylist,
		clock:    clk,
		redis:    client,
		mr:       mr,
	}
}

func annRequest() auth.RegisterRequest {
	return auth.RegisterRequest{
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "ann@x.com",
		Password:  "Secret123!",
	}
}

// registerVerified registers Ann and confirms her code.
func (f *fixture) registerVerified(t *testing.T) *auth.RegisterResponse {
	t.Helper()

	ctx := context.Background()
	resp, err := f.service.Register(ctx, annRequest())
	require.NoError(t, err)

	outcome, err := f.service.VerifyCode(ctx, resp.ID, f.mailer.last(t).Code)
	require.NoError(t, err)
	require.Equal(t, verification.Verified, outcome)

	return resp
}
