package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"slotbook/pkg/logger"
	"slotbook/pkg/session"
)

const OwnerIDKey contextKey = "owner_id"

// Auth resolves the calling owner from a sealed bearer token. The core never
// parses credentials beyond this point; handlers read the owner id from the
// request context.
func Auth(sealer *session.Sealer, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				rejectUnauthorized(w, "Missing bearer token")
				return
			}

			ownerID, err := sealer.Open(token, time.Now())
			if err != nil {
				log.Warn("Session token rejected",
					"request_id", requestIDFrom(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				rejectUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerIDFrom returns the authenticated owner id, or "" when the request
// never passed the auth middleware.
func OwnerIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(OwnerIDKey).(string); ok {
		return id
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func rejectUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
