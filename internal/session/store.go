// AngelaMos | 2026
// store.go

// Package session keeps server-side login sessions in Redis behind an
// HMAC-signed cookie. Only the user id is persisted.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/courseware/internal/core"
)

var (
	ErrClosed     = errors.New("session store closed")
	ErrWeakSecret = errors.New("session secret must be at least 32 bytes")
)

const (
	keyPrefix       = "session:"
	idBytes         = 32
	minSecretLength = 32
)

type Config struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

type Store struct {
	client     *redis.Client
	cookieName string
	secret     []byte
	ttl        time.Duration
	secure     bool
	closed     atomic.Bool
}

type payload struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Open validates cfg and checks that Redis is reachable. Close must be
// called once the store is no longer needed.
func Open(ctx context.Context, rdb *core.Redis, cfg Config) (*Store, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.CookieName == "" {
		return nil, fmt.Errorf("session cookie name is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}

	if err := rdb.Ping(ctx); err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &Store{
		client:     rdb.Client,
		cookieName: cfg.CookieName,
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
	}, nil
}

// Close disposes the store. The Redis client is owned by the caller.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// Load returns the session referenced by the request cookie. A missing,
// forged or expired cookie yields a new anonymous session.
func (s *Store) Load(ctx context.Context, r *http.Request) (*Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return newSession(), nil
	}

	id, ok := core.VerifySignedValue(s.secret, cookie.Value)
	if !ok {
		return newSession(), nil
	}

	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var stored payload
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &Session{
		id:        id,
		userID:    stored.UserID,
		createdAt: stored.CreatedAt,
	}, nil
}

// Commit persists changes made to sess during the request and writes the
// cookie. An untouched session costs nothing.
func (s *Store) Commit(
	ctx context.Context,
	w http.ResponseWriter,
	sess *Session,
) error {
	if sess == nil {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}

	if sess.destroyed {
		if sess.id != "" {
			if err := s.client.Del(ctx, redisKey(sess.id)).Err(); err != nil {
				return fmt.Errorf("destroy session: %w", err)
			}
		}
		s.clearCookie(w)
		sess.destroyed = false
		sess.id = ""
		return nil
	}

	if !sess.dirty {
		return nil
	}

	if sess.previousID != "" {
		if err := s.client.Del(ctx, redisKey(sess.previousID)).Err(); err != nil {
			return fmt.Errorf("rotate session: %w", err)
		}
		sess.previousID = ""
	}

	if sess.id == "" {
		id, err := core.GenerateSecureToken(idBytes)
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		sess.id = id
		sess.createdAt = time.Now()
	}

	data, err := json.Marshal(payload{
		UserID:    sess.userID,
		CreatedAt: sess.createdAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(sess.id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    core.SignValue(s.secret, sess.id),
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	sess.dirty = false
	return nil
}

func (s *Store) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func redisKey(id string) string {
	return keyPrefix + id
}
