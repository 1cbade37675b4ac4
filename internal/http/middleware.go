package http

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"

	"github.com/example/community-events/internal/application"
)

// SecretVerifier checks a bearer token presented to a protected endpoint.
type SecretVerifier interface {
	VerifySecret(token string) error
}

// RequireSecret rejects requests whose Authorization header does not carry a
// bearer token accepted by verifier.
func RequireSecret(verifier SecretVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := application.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSyncSecret)
				return
			}

			if verifier == nil {
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}
			if err := verifier.VerifySecret(token); err != nil {
				if !errors.Is(err, application.ErrUnauthorized) {
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "secret verification failed", "error", err)
				}
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}

// CORS allows browser clients from the given origins; an empty list allows any origin.
func CORS(origins ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
}
