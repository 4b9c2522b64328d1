// AngelaMos | 2026
// gate.go

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/session"
)

type SessionStore interface {
	Load(ctx context.Context, r *http.Request) (*session.Session, error)
	Commit(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

type GateConfig struct {
	Sessions   SessionStore
	Principals PrincipalLoader
	Tokens     TokenVerifier
	Logger     *slog.Logger
}

// Gate establishes who is calling. It loads the session and its principal,
// verifies any bearer token, and rejects a token that names a different
// user than the session. Session changes made downstream are committed
// just before the response header goes out.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := cfg.Sessions.Load(ctx, r)
			if err != nil {
				logger.ErrorContext(ctx, "load session", "error", err)
				core.JSONError(w, core.NewAppError(
					err,
					"session store unavailable",
					http.StatusServiceUnavailable,
					"SESSION_UNAVAILABLE",
				))
				return
			}

			cw := &commitWriter{
				ResponseWriter: w,
				ctx:            ctx,
				store:          cfg.Sessions,
				sess:           sess,
				logger:         logger,
			}
			defer cw.finish()

			principal, err := loadSessionPrincipal(ctx, cfg.Principals, sess)
			if err != nil {
				core.InternalServerError(cw, err)
				return
			}

			if token := ExtractToken(r); token != "" {
				claims, err := cfg.Tokens.VerifyAccessToken(ctx, token)
				if err != nil {
					handleAuthError(cw, err)
					return
				}

				if principal != nil && principal.UserID != claims.UserID {
					core.JSONError(cw, core.ForbiddenError(
						"token does not belong to the session user",
					))
					return
				}

				if principal == nil {
					principal, err = cfg.Principals.LoadPrincipal(ctx, claims.UserID)
					if errors.Is(err, core.ErrNotFound) {
						core.JSONError(cw, core.TokenInvalidError())
						return
					}
					if err != nil {
						core.InternalServerError(cw, err)
						return
					}
				}

				ctx = WithClaims(ctx, claims)
			}

			ctx = WithSession(ctx, sess)
			if principal != nil {
				ctx = WithPrincipal(ctx, principal)
			}

			next.ServeHTTP(cw, r.WithContext(ctx))
		})
	}
}

// loadSessionPrincipal returns nil for anonymous sessions. A session whose
// user has gone is destroyed and treated as anonymous.
func loadSessionPrincipal(
	ctx context.Context,
	loader PrincipalLoader,
	sess *session.Session,
) (*Principal, error) {
	if !sess.IsAuthenticated() {
		return nil, nil
	}

	p, err := loader.LoadPrincipal(ctx, sess.UserID())
	if errors.Is(err, core.ErrNotFound) {
		sess.Destroy()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

type commitWriter struct {
	http.ResponseWriter
	ctx           context.Context
	store         SessionStore
	sess          *session.Session
	logger        *slog.Logger
	headerWritten bool
	failed        bool
}

func (w *commitWriter) WriteHeader(statusCode int) {
	if w.headerWritten {
		return
	}
	w.headerWritten = true

	if err := w.store.Commit(w.ctx, w.ResponseWriter, w.sess); err != nil {
		w.logger.ErrorContext(w.ctx, "commit session", "error", err)
		w.failed = true
		core.JSONError(w.ResponseWriter, core.NewAppError(
			err,
			"session store unavailable",
			http.StatusServiceUnavailable,
			"SESSION_UNAVAILABLE",
		))
		return
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *commitWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return len(data), nil
	}
	return w.ResponseWriter.Write(data)
}

func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// finish commits sessions for handlers that returned without writing.
func (w *commitWriter) finish() {
	if !w.headerWritten && w.sess.IsDirty() {
		w.WriteHeader(http.StatusOK)
	}
}
