package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// RequireOwner extracts the caller identity set by the upstream auth layer
// from the X-Owner-ID header and stores it on the request context. Requests
// without a parseable owner are rejected before reaching handlers.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.Header.Get("X-Owner-ID"))
		if err != nil {
			http.Error(w, "missing or invalid X-Owner-ID header", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerID returns the caller identity stored by RequireOwner.
func OwnerID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ownerIDKey).(uuid.UUID)
	return id
}
