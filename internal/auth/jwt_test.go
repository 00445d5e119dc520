package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-training/internal/rbac"
)

func bearer(tok string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return r
}

func TestJWT_IssueAuthenticate(t *testing.T) {
	a := NewJWTAuthenticator("secret", time.Hour)
	tok, exp, err := a.Issue(Identity{AccountID: "acc-1", Role: rbac.RoleLearner})
	if err != nil {
		t.Fatal(err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry %v not in the future", exp)
	}
	id, err := a.Authenticate(bearer(tok))
	if err != nil {
		t.Fatal(err)
	}
	if id.AccountID != "acc-1" || id.Role != rbac.RoleLearner {
		t.Fatalf("identity = %+v", id)
	}
}

func TestJWT_Rejects(t *testing.T) {
	a := NewJWTAuthenticator("secret", time.Hour)
	good, _, _ := a.Issue(Identity{AccountID: "acc-1", Role: rbac.RoleLearner})

	other := NewJWTAuthenticator("other-secret", time.Hour)
	forged, _, _ := other.Issue(Identity{AccountID: "acc-1", Role: rbac.RoleAdmin})

	expired := NewJWTAuthenticator("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, _ := expired.Issue(Identity{AccountID: "acc-1", Role: rbac.RoleLearner})

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role:             rbac.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]struct {
		tok  string
		want error
	}{
		"missing":   {"", ErrNoCredentials},
		"garbage":   {"not-a-token", ErrInvalidToken},
		"forged":    {forged, ErrInvalidToken},
		"expired":   {stale, ErrInvalidToken},
		"alg none":  {unsigned, ErrInvalidToken},
		"truncated": {good[:len(good)-4], ErrInvalidToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := a.Authenticate(bearer(tc.tok)); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

type fakeAuth struct {
	id  Identity
	err error
}

func (f fakeAuth) Authenticate(*http.Request) (Identity, error) { return f.id, f.err }

func TestMiddleware(t *testing.T) {
	var gotSub, gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, gotRole = rbac.SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	Middleware(fakeAuth{id: Identity{AccountID: "acc-9", Role: rbac.RoleInstructor}})(next).ServeHTTP(rec, bearer("x"))
	if rec.Code != http.StatusNoContent || gotSub != "acc-9" || gotRole != rbac.RoleInstructor {
		t.Fatalf("code=%d sub=%q role=%q", rec.Code, gotSub, gotRole)
	}

	rec = httptest.NewRecorder()
	Middleware(fakeAuth{err: ErrNoCredentials})(next).ServeHTTP(rec, bearer(""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d, want 401", rec.Code)
	}
}
