package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// RefreshTokenRepo persists refresh-token records keyed by JTI.
type RefreshTokenRepo struct {
	db     *sql.DB
	schema string
}

func NewRefreshTokenRepo(db *sql.DB, schema string) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db, schema: schema}
}

func (r *RefreshTokenRepo) table() string {
	return tableName(r.schema, "refresh_tokens")
}

// Insert stores a freshly minted token record.
func (r *RefreshTokenRepo) Insert(ctx context.Context, rec domain.RefreshToken) error {
	q := fmt.Sprintf(`
INSERT INTO %s (account_id, jti, token_hash, user_agent, ip, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, NOW(), $6);`, r.table())

	_, err := r.db.ExecContext(ctx, q,
		rec.AccountID, rec.JTI, rec.TokenHash, rec.UserAgent, rec.IP, rec.ExpiresAt,
	)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

// GetByJTI loads a record; unknown JTI maps to refresh_invalid.
func (r *RefreshTokenRepo) GetByJTI(ctx context.Context, jti uuid.UUID) (domain.RefreshToken, error) {
	q := fmt.Sprintf(`
SELECT id, account_id, jti, token_hash, user_agent, ip, created_at, expires_at, revoked_at
FROM %s
WHERE jti = $1
LIMIT 1;`, r.table())

	var (
		rec       domain.RefreshToken
		userAgent sql.NullString
		ip        sql.NullString
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, jti).Scan(
		&rec.ID, &rec.AccountID, &rec.JTI, &rec.TokenHash,
		&userAgent, &ip, &rec.CreatedAt, &rec.ExpiresAt, &revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RefreshToken{}, domain.ErrRefreshInvalid()
		}
		return domain.RefreshToken{}, domain.ErrDBUnavailable(err)
	}
	rec.UserAgent = userAgent.String
	rec.IP = ip.String
	if revokedAt.Valid {
		rec.RevokedAt = &revokedAt.Time
	}
	return rec, nil
}

// Rotate atomically revokes the old record and inserts its replacement. The
// revoke guards on revoked_at IS NULL so a concurrent rotation of the same
// token loses the race and surfaces as refresh_invalid.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, oldID int64, next domain.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	revoke := fmt.Sprintf(`
UPDATE %s
SET revoked_at = NOW()
WHERE id = $1 AND revoked_at IS NULL;`, r.table())

	res, err := tx.ExecContext(ctx, revoke, oldID)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRefreshInvalid()
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (account_id, jti, token_hash, user_agent, ip, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, NOW(), $6);`, r.table())

	if _, err = tx.ExecContext(ctx, insert,
		next.AccountID, next.JTI, next.TokenHash, next.UserAgent, next.IP, next.ExpiresAt,
	); err != nil {
		return domain.ErrDBUnavailable(err)
	}

	if err = tx.Commit(); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

// RevokeByJTI marks an active record revoked. Missing or already-revoked
// records are not an error; logout is idempotent.
func (r *RefreshTokenRepo) RevokeByJTI(ctx context.Context, jti uuid.UUID, at time.Time) error {
	q := fmt.Sprintf(`
UPDATE %s
SET revoked_at = $2
WHERE jti = $1 AND revoked_at IS NULL;`, r.table())

	if _, err := r.db.ExecContext(ctx, q, jti, at); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}
