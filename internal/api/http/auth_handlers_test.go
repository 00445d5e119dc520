package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/auth"
	"github.com/mind-engage/mindengage-training/internal/rbac"
)

type fakeCredentials struct {
	passwords map[string]string
}

func (f *fakeCredentials) Verify(_ context.Context, username, password string) (auth.Identity, error) {
	if pw, ok := f.passwords[username]; !ok || pw != password {
		return auth.Identity{}, apperr.Unauthorized("invalid credentials")
	}
	return auth.Identity{AccountID: "acc-" + username, Role: rbac.RoleLearner}, nil
}

func (f *fakeCredentials) ChangePassword(_ context.Context, accountID, oldPassword, newPassword string) error {
	username := accountID[len("acc-"):]
	if f.passwords[username] != oldPassword {
		return apperr.Forbidden("incorrect old password")
	}
	f.passwords[username] = newPassword
	return nil
}

func TestLoginAndChangePassword(t *testing.T) {
	creds := &fakeCredentials{passwords: map[string]string{"lee": "pw"}}
	jwt := auth.NewJWTAuthenticator("test-secret", time.Hour)
	s := &server{t: t, h: NewRouter(Deps{
		Auth:            jwt,
		Credentials:     creds,
		Tokens:          jwt,
		EnableLocalAuth: true,
	})}

	if r := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "lee", "password": "nope"}); r.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", r.Code)
	}
	if r := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "lee"}); r.Code != http.StatusBadRequest {
		t.Fatalf("missing password: %d", r.Code)
	}

	var login struct {
		AccessToken string `json:"accessToken"`
		AccountID   string `json:"accountId"`
		Role        string `json:"role"`
	}
	s.must(s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "lee", "password": "pw"}), http.StatusOK, &login)
	if login.AccessToken == "" || login.AccountID != "acc-lee" || login.Role != rbac.RoleLearner {
		t.Fatalf("login = %+v", login)
	}

	change := map[string]string{"oldPassword": "wrong", "newPassword": "pw2"}
	if r := s.do(http.MethodPost, "/auth/password", login.AccessToken, change); r.Code != http.StatusForbidden {
		t.Fatalf("wrong old password: %d", r.Code)
	}
	change["oldPassword"] = "pw"
	s.must(s.do(http.MethodPost, "/auth/password", login.AccessToken, change), http.StatusOK, nil)
	if creds.passwords["lee"] != "pw2" {
		t.Fatal("password not changed")
	}
	if r := s.do(http.MethodPost, "/auth/password", "", change); r.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated change: %d", r.Code)
	}
}
