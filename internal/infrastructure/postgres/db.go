package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Open dials Postgres through the pgx database/sql driver and verifies the
// connection with a short ping.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.ErrDBUnavailable(err)
	}
	return db, nil
}

// tableName qualifies a table with the configured schema, if any.
func tableName(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// isUniqueViolation detects SQLSTATE 23505 from pgx; the string fallback
// keeps repository tests driver-agnostic.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
