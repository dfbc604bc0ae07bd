package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/backend/users"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok && u.ID != ""
}

// RequestIDHeader echoes the chi request id back to the caller.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(api.HeaderRequestID, id)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request and puts a request scoped logger
// into the context.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLog := logger.WithTrace(r.Context(), log).With(
				zap.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(logger.Into(r.Context(), reqLog))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqLog.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}

func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserResolver is satisfied by *users.Service.
type UserResolver interface {
	Resolve(ctx context.Context, id string) (domain.User, error)
}

// Authenticate requires a valid bearer token and stores its user in the
// request context. The user, role included, is read from the directory on
// each request so a deleted or demoted account loses access at once.
func Authenticate(tokens *users.Tokens, resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			u, err := resolver.Resolve(r.Context(), claims.Subject)
			if errors.Is(err, users.ErrUserNotFound) {
				respondError(w, http.StatusUnauthorized, "unauthorized", "user no longer exists")
				return
			}
			if err != nil {
				handleError(r.Context(), w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		if !u.IsAdmin() {
			respondError(w, http.StatusForbidden, "permission_denied", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
