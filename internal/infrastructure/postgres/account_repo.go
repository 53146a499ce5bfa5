package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// AccountRepo persists accounts and their credentials.
type AccountRepo struct {
	db     *sql.DB
	schema string
}

func NewAccountRepo(db *sql.DB, schema string) *AccountRepo {
	return &AccountRepo{db: db, schema: schema}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByUsername loads an account and its credentials row. Missing account
// comes back as sql.ErrNoRows wrapped into invalid_credentials by the caller;
// the repo stays silent about which part was missing.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (domain.Account, domain.Credentials, error) {
	q := fmt.Sprintf(`
SELECT a.id, a.username, a.email, a.status, a.role, a.created_at, a.updated_at,
       c.password_hash, c.password_updated_at, c.last_login_at, c.failed_attempts, c.locked_until
FROM %s a
JOIN %s c ON c.account_id = a.id
WHERE a.username = $1
LIMIT 1;`, tableName(r.schema, "accounts"), tableName(r.schema, "credentials"))

	var (
		acc         domain.Account
		cred        domain.Credentials
		lastLogin   sql.NullTime
		lockedUntil sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, username).Scan(
		&acc.ID, &acc.Username, &acc.Email, &acc.Status, &acc.Role, &acc.CreatedAt, &acc.UpdatedAt,
		&cred.PasswordHash, &cred.PasswordUpdatedAt, &lastLogin, &cred.FailedAttempts, &lockedUntil,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.Credentials{}, domain.ErrInvalidCredentials()
		}
		return domain.Account{}, domain.Credentials{}, domain.ErrDBUnavailable(err)
	}
	cred.AccountID = acc.ID
	if lastLogin.Valid {
		cred.LastLoginAt = &lastLogin.Time
	}
	if lockedUntil.Valid {
		cred.LockedUntil = &lockedUntil.Time
	}
	return acc, cred, nil
}

// GetByID loads an account without credentials.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	q := fmt.Sprintf(`
SELECT id, username, email, status, role, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1;`, tableName(r.schema, "accounts"))

	var acc domain.Account
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&acc.ID, &acc.Username, &acc.Email, &acc.Status, &acc.Role, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrInvalidCredentials()
		}
		return domain.Account{}, domain.ErrDBUnavailable(err)
	}
	return acc, nil
}

// Exists reports whether the username or (case-insensitive) email is taken.
func (r *AccountRepo) Exists(ctx context.Context, username, email string) (bool, error) {
	q := fmt.Sprintf(`
SELECT EXISTS (
  SELECT 1 FROM %s WHERE username = $1 OR lower(email) = $2
);`, tableName(r.schema, "accounts"))

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, username, normalizeEmail(email)).Scan(&exists); err != nil {
		return false, domain.ErrDBUnavailable(err)
	}
	return exists, nil
}

// Create inserts the account and its credentials in one transaction. A
// unique-violation race maps to auth.user_exists.
func (r *AccountRepo) Create(ctx context.Context, username, email, passwordHash string) (domain.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, domain.ErrDBUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	insertAccount := fmt.Sprintf(`
INSERT INTO %s (username, email, status, role)
VALUES ($1, $2, $3, $4)
RETURNING id, username, email, status, role, created_at, updated_at;`, tableName(r.schema, "accounts"))

	var acc domain.Account
	err = tx.QueryRowContext(ctx, insertAccount,
		username, normalizeEmail(email), domain.StatusActive, domain.RoleUser,
	).Scan(&acc.ID, &acc.Username, &acc.Email, &acc.Status, &acc.Role, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, domain.ErrUserExists()
		}
		return domain.Account{}, domain.ErrDBUnavailable(err)
	}

	insertCreds := fmt.Sprintf(`
INSERT INTO %s (account_id, password_hash, password_updated_at)
VALUES ($1, $2, NOW());`, tableName(r.schema, "credentials"))

	if _, err = tx.ExecContext(ctx, insertCreds, acc.ID, passwordHash); err != nil {
		return domain.Account{}, domain.ErrDBUnavailable(err)
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, domain.ErrUserExists()
		}
		return domain.Account{}, domain.ErrDBUnavailable(err)
	}
	return acc, nil
}

// SetLastLogin stamps a successful issue.
func (r *AccountRepo) SetLastLogin(ctx context.Context, accountID int64, at time.Time) error {
	q := fmt.Sprintf(`
UPDATE %s
SET last_login_at = $2
WHERE account_id = $1;`, tableName(r.schema, "credentials"))

	if _, err := r.db.ExecContext(ctx, q, accountID, at); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}
