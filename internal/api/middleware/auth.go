package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

// Identity resolves the caller from the X-User-ID header set by the
// upstream gateway, which owns authentication. Requests without a
// parseable identity are rejected before reaching any handler.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			jsonError(w, http.StatusUnauthorized, "missing identity")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid identity")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext retrieves the authenticated user id. Returns uuid.Nil
// when the request skipped the Identity middleware.
func UserFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userContextKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// jsonError writes a minimal JSON error body.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
