package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/model"
)

// SessionParser validates a bearer token and returns the session it carries.
type SessionParser interface {
	Parse(token string) (*model.Session, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger *slog.Logger
	Tokens SessionParser
}

// RequireSession returns a middleware that rejects requests without a valid
// session token and injects the session into the request context.
func RequireSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, reason := authenticate(cfg, r)
			if session == nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			SetUserID(r.Context(), session.UserID)
			ctx := auth.ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession injects the session when a valid token is present and
// passes the request through untouched otherwise. Handlers decide what a
// missing session means.
func OptionalSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, reason := authenticate(cfg, r)
			if session == nil {
				if reason != "missing_token" {
					cfg.Logger.Warn("session ignored",
						slog.String("reason", reason),
						slog.String("endpoint", r.Method+" "+r.URL.Path),
						slog.String("request_id", GetRequestID(r.Context())),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			SetUserID(r.Context(), session.UserID)
			ctx := auth.ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg SessionConfig, r *http.Request) (*model.Session, string) {
	token := extractBearerToken(r)
	if token == "" {
		return nil, "missing_token"
	}
	session, err := cfg.Tokens.Parse(token)
	if err != nil {
		return nil, "invalid_token"
	}
	return session, ""
}

// extractBearerToken reads "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
