package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

func newMockRepo(t *testing.T) (*AccountRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewAccountRepo(db, ""), mock, func() { _ = db.Close() }
}

func accountColumns() []string {
	return []string{"id", "username", "email", "status", "role", "created_at", "updated_at"}
}

func TestAccountRepo_GetByUsername(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "username", "email", "status", "role", "created_at", "updated_at",
		"password_hash", "password_updated_at", "last_login_at", "failed_attempts", "locked_until",
	}).AddRow(int64(7), "alice", "a@x.io", "active", "user", now, now,
		"$2a$12$hash", now, nil, 0, nil)

	mock.ExpectQuery(`JOIN credentials c`).
		WithArgs("alice").
		WillReturnRows(rows)

	acc, cred, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID != 7 || acc.Status != domain.StatusActive {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if cred.AccountID != 7 || cred.PasswordHash != "$2a$12$hash" {
		t.Fatalf("unexpected credentials: %+v", cred)
	}
	if cred.LastLoginAt != nil {
		t.Fatalf("null last_login_at must stay nil")
	}
}

func TestAccountRepo_GetByUsername_NotFoundHidesCause(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(`JOIN credentials c`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.GetByUsername(context.Background(), "ghost")
	if !domain.Is(err, domain.CodeInvalidCredentials) {
		t.Fatalf("missing account must surface as invalid_credentials, got %v", err)
	}
}

func TestAccountRepo_Create_CommitsBothRows(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("alice", "a@x.io", domain.StatusActive, domain.RoleUser).
		WillReturnRows(sqlmock.NewRows(accountColumns()).
			AddRow(int64(1), "alice", "a@x.io", "active", "user", now, now))
	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(int64(1), "$2a$12$hash").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	acc, err := repo.Create(context.Background(), "alice", "A@X.io", "$2a$12$hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID != 1 {
		t.Fatalf("unexpected id: %d", acc.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAccountRepo_Create_UniqueViolation(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "accounts_username_key" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), "alice", "a@x.io", "h")
	if !domain.Is(err, domain.CodeUserExists) {
		t.Fatalf("unique violation must map to auth.user_exists, got %v", err)
	}
}

func TestAccountRepo_Exists(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("alice", "a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.Exists(context.Background(), "alice", "A@X.IO")
	if err != nil || !taken {
		t.Fatalf("expected taken=true, got %v %v", taken, err)
	}
}

func TestAccountRepo_SetLastLogin(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	at := time.Now()
	mock.ExpectExec(`UPDATE credentials`).
		WithArgs(int64(3), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetLastLogin(context.Background(), 3, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(errors.New("SQLSTATE 23505")) {
		t.Fatalf("sqlstate text must match")
	}
	if !isUniqueViolation(errors.New("duplicate key value violates unique constraint")) {
		t.Fatalf("duplicate key text must match")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("unrelated errors must not match")
	}
}
