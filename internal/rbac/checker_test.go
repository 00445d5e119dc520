package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleLearner, "exam:take", true},
		{RoleLearner, "exam:manage", false},
		{RoleInstructor, "result:grade", true},
		{RoleInstructor, "exam:take", false},
		{RoleAdmin, "anything:at-all", true},
		{"", "exam:take", false},
		{"guest", "exam:take", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestMatchPerm_Wildcard(t *testing.T) {
	c := NewChecker(map[string][]string{"ops": {"exam:*"}})
	if !c.Has("ops", "exam:manage") {
		t.Fatal("exam:* should match exam:manage")
	}
	if c.Has("ops", "result:grade") {
		t.Fatal("exam:* should not match result:grade")
	}
}

func TestRequire(t *testing.T) {
	h := Require("exam:manage")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		RoleInstructor: http.StatusNoContent,
		RoleLearner:    http.StatusForbidden,
		"":             http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rec.Code, want)
		}
	}
}

func TestSubjectContext(t *testing.T) {
	ctx := WithSubject(WithRole(context.Background(), RoleLearner), "acc-1")
	if SubjectFromContext(ctx) != "acc-1" || RoleFromContext(ctx) != RoleLearner {
		t.Fatal("identity not round-tripped through context")
	}
	if SubjectFromContext(context.Background()) != "" {
		t.Fatal("empty context should have no subject")
	}
}
