package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/rbac"
)

type Account struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ProfileID string `json:"profileId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

type NewAccount struct {
	Username string
	Password string
	Role     string
	FullName string
}

// Accounts stores local credentials as bcrypt hashes.
type Accounts struct {
	db   *sql.DB
	cost int
}

func NewAccounts(dbh *sql.DB) *Accounts {
	return &Accounts{db: dbh, cost: 12}
}

// Verify checks a username/password pair. Unknown users and wrong
// passwords produce the same error.
func (a *Accounts) Verify(ctx context.Context, username, password string) (Identity, error) {
	var id Identity
	var hash string
	err := a.db.QueryRowContext(ctx, `SELECT id, role, password_hash FROM accounts WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&id.AccountID, &id.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Identity{}, apperr.Unauthorized("invalid credentials")
	}
	return id, nil
}

func (a *Accounts) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.Invalid("new password required")
	}
	var storedHash string
	err := a.db.QueryRowContext(ctx, `SELECT password_hash FROM accounts WHERE id=$1`, accountID).Scan(&storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("account not found")
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(oldPassword)) != nil {
		return apperr.Forbidden("incorrect old password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.cost)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `UPDATE accounts SET password_hash=$1 WHERE id=$2`, string(hash), accountID); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Create inserts an account and, for learners and instructors, the matching
// profile row in the same transaction.
func (a *Accounts) Create(ctx context.Context, in NewAccount) (Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return Account{}, apperr.Invalid("username and password required")
	}
	if !rbac.ValidRole(in.Role) {
		return Account{}, apperr.Invalid("unknown role %q", in.Role)
	}
	if in.FullName == "" {
		in.FullName = in.Username
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return Account{}, err
	}
	acc := Account{ID: uuid.NewString(), Username: in.Username, Role: in.Role, CreatedAt: time.Now().Unix()}
	err = db.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts (id, username, password_hash, role, created_at)
			VALUES ($1,$2,$3,$4,$5)`, acc.ID, acc.Username, string(hash), acc.Role, acc.CreatedAt); err != nil {
			return err
		}
		var table string
		switch in.Role {
		case rbac.RoleLearner:
			table = "learners"
		case rbac.RoleInstructor:
			table = "instructors"
		default:
			return nil
		}
		acc.ProfileID = uuid.NewString()
		_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (id, account_id, full_name) VALUES ($1,$2,$3)`,
			acc.ProfileID, acc.ID, in.FullName)
		return err
	})
	if db.IsUniqueViolation(err) {
		return Account{}, apperr.Conflict("username %q already exists", in.Username)
	}
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}
