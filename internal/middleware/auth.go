package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/virtualbank/backend/internal/services"
)

type contextKey string

const uidKey contextKey = "uid"

// Authenticator turns a bearer token into the uid it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// IdentityGuard rejects unauthenticated callers and callers acting on
// somebody else's account.
type IdentityGuard struct {
	auth Authenticator
}

func NewIdentityGuard(auth Authenticator) *IdentityGuard {
	return &IdentityGuard{auth: auth}
}

func (g *IdentityGuard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
			return
		}

		uid, err := g.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.Printf("[AUTH] Token rejected from IP %s: %v", r.RemoteAddr, err)
			services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
			return
		}

		ctx := context.WithValue(r.Context(), uidKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOwner must run after Authenticate on routes carrying a {uid} parameter.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UIDFromContext(r.Context())
		if !ok {
			services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
			return
		}
		if chi.URLParam(r, "uid") != uid {
			log.Printf("[AUTH] uid %s attempted to access account %s", uid, chi.URLParam(r, "uid"))
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidKey).(string)
	return uid, ok && uid != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SecurityHeaders sets conservative response headers on every response
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
