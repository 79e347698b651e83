package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/store"
)

type contextKey string

const (
	claimsContextKey  contextKey = "claims"
	sessionContextKey contextKey = "session_id"
)

// AuthMiddleware verifies the bearer token and then confirms the referenced
// session still exists in the store. A valid signature over an evicted
// session fails exactly like an invalid token: the client must not be able
// to distinguish the cases.
func AuthMiddleware(tokens *security.TokenManager, sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordTokenValidation("missing")
				response.Unauthorized(w, r)
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				if errors.Is(err, security.ErrTokenExpired) {
					observability.RecordTokenValidation("expired")
				} else {
					observability.RecordTokenValidation("invalid")
				}
				response.Unauthorized(w, r)
				return
			}
			if _, err := sessions.FindByID(claims.SessionID); err != nil {
				// Covers the sweeper race: token still signed and unexpired,
				// session already evicted or logged out.
				observability.RecordTokenValidation("session_gone")
				response.Unauthorized(w, r)
				return
			}
			observability.RecordTokenValidation("valid")
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = context.WithValue(ctx, sessionContextKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return c, ok
}

// SessionIDFromContext returns the session id derived from the verified
// token. Handlers must scope all resource access by this value and never by
// anything the client supplied directly.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionContextKey).(string)
	return id, ok && id != ""
}
