package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"shrinktrack/internal/directory/models"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
	"shrinktrack/pkg/requestcontext"
)

// Authenticator validates a bearer token and yields the principal identity.
type Authenticator interface {
	Authenticate(token string) (domain.PrincipalID, error)
}

// PrincipalResolver turns an authenticated identity into a directory
// principal.
type PrincipalResolver interface {
	Lookup(ctx context.Context, id domain.PrincipalID) (*models.Principal, error)
}

type principalKey struct{}

// PrincipalFrom returns the authenticated principal set by RequireAuth.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// RequestScope captures one "now" and a request ID at the start of the
// request so audit timestamps, window checks, and logs all agree.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())

		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, id)
		w.Header().Set("X-Request-ID", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts panics into 500s instead of dropping the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic in handler",
						"panic", rec,
						"path", r.URL.Path,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth validates the bearer token, resolves the principal through the
// directory, and rejects inactive principals before any handler runs.
func RequireAuth(auth Authenticator, resolver PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			id, err := auth.Authenticate(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			principal, err := resolver.Lookup(ctx, id)
			if err != nil {
				logger.WarnContext(ctx, "token subject not in directory",
					"principal_id", id.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown principal"))
				return
			}
			if !principal.Active {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "principal is inactive"))
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, *principal)))
		})
	}
}
