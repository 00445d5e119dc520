package auth

import (
	"context"
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/rbac"
)

func newAccounts(t *testing.T) *Accounts {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	a := NewAccounts(dbh)
	a.cost = bcrypt.MinCost
	return a
}

func TestAccounts_CreateVerify(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)

	acc, err := a.Create(ctx, NewAccount{Username: "lee", Password: "pw1", Role: rbac.RoleLearner, FullName: "Lee"})
	if err != nil {
		t.Fatal(err)
	}
	if acc.ProfileID == "" {
		t.Fatal("learner account should get a learner row")
	}
	var name string
	if err := a.db.QueryRowContext(ctx, `SELECT full_name FROM learners WHERE account_id=$1`, acc.ID).Scan(&name); err != nil || name != "Lee" {
		t.Fatalf("learner row: %q %v", name, err)
	}

	id, err := a.Verify(ctx, "lee", "pw1")
	if err != nil || id.AccountID != acc.ID || id.Role != rbac.RoleLearner {
		t.Fatalf("verify = %+v, %v", id, err)
	}
	if _, err := a.Verify(ctx, "lee", "wrong"); !apperr.Is(err, http.StatusUnauthorized) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := a.Verify(ctx, "nobody", "pw1"); !apperr.Is(err, http.StatusUnauthorized) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestAccounts_CreateRejects(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	if _, err := a.Create(ctx, NewAccount{Username: "ana", Password: "x", Role: rbac.RoleInstructor}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Create(ctx, NewAccount{Username: "ana", Password: "y", Role: rbac.RoleLearner}); !apperr.Is(err, http.StatusConflict) {
		t.Fatalf("duplicate username: %v", err)
	}
	if _, err := a.Create(ctx, NewAccount{Username: "bo", Password: "x", Role: "teacher"}); !apperr.Is(err, http.StatusBadRequest) {
		t.Fatalf("unknown role: %v", err)
	}
	admin, err := a.Create(ctx, NewAccount{Username: "root", Password: "x", Role: rbac.RoleAdmin})
	if err != nil || admin.ProfileID != "" {
		t.Fatalf("admin = %+v, %v", admin, err)
	}
}

func TestAccounts_ChangePassword(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	acc, err := a.Create(ctx, NewAccount{Username: "lee", Password: "old", Role: rbac.RoleLearner})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.ChangePassword(ctx, acc.ID, "nope", "new"); !apperr.Is(err, http.StatusForbidden) {
		t.Fatalf("wrong old password: %v", err)
	}
	if err := a.ChangePassword(ctx, acc.ID, "old", ""); !apperr.Is(err, http.StatusBadRequest) {
		t.Fatalf("empty new password: %v", err)
	}
	if err := a.ChangePassword(ctx, "missing", "old", "new"); !apperr.Is(err, http.StatusNotFound) {
		t.Fatalf("unknown account: %v", err)
	}
	if err := a.ChangePassword(ctx, acc.ID, "old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(ctx, "lee", "new"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := a.Verify(ctx, "lee", "old"); err == nil {
		t.Fatal("old password still accepted")
	}
}
