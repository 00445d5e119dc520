// Package auth authenticates requests and manages local accounts.
//
// Handlers never see credentials: Middleware resolves an Identity through an
// Authenticator and stores it in the request context via rbac.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-training/internal/rbac"
)

// Identity is who a request acts as.
type Identity struct {
	AccountID string `json:"accountId"`
	Role      string `json:"role"`
}

// Authenticator resolves the identity behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

var (
	ErrNoCredentials = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Middleware rejects unauthenticated requests with 401 and otherwise puts
// the account id and role into the context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil || id.AccountID == "" {
				msg := "unauthorized"
				if errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrInvalidToken) {
					msg = err.Error()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
				return
			}
			ctx := rbac.WithRole(rbac.WithSubject(r.Context(), id.AccountID), id.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
