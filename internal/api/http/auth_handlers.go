package http

import (
	"context"
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/auth"
)

type Credentials interface {
	Verify(ctx context.Context, username, password string) (auth.Identity, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
}

type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// POST /auth/login {"username": "...", "password": "..."}
func LoginHandler(creds Credentials, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.Username == "" || req.Password == "" {
			fail(w, r, apperr.Invalid("username and password required"))
			return
		}
		id, err := creds.Verify(r.Context(), req.Username, req.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		tok, exp, err := tokens.Issue(id)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, "", map[string]any{
			"accessToken": tok,
			"expiresAt":   exp.Unix(),
			"accountId":   id.AccountID,
			"role":        id.Role,
		})
	}
}

// POST /auth/password {"oldPassword": "...", "newPassword": "..."}
func ChangePasswordHandler(creds Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"oldPassword"`
			NewPassword string `json:"newPassword"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if err := creds.ChangePassword(r.Context(), accountID(r), req.OldPassword, req.NewPassword); err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, "password changed", nil)
	}
}
