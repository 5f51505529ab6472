package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

// RevokedTokenRepo implements RevokedTokenRepository using PostgreSQL.
// The unique index on revoked_tokens.token is the only guard against double revocation.
type RevokedTokenRepo struct{ db *DB }

// NewRevokedTokenRepo constructs a revocation repository.
func NewRevokedTokenRepo(db *DB) *RevokedTokenRepo { return &RevokedTokenRepo{db: db} }

// Insert stores recs atomically. Records without an ID get a fresh UUIDv4.
func (r *RevokedTokenRepo) Insert(ctx context.Context, recs ...model.RevokedToken) error {
	const q = `
INSERT INTO revoked_tokens (id, token, token_type, reason, revoked_by_user_id, revoked_from_ip)
VALUES ($1, $2, $3, $4, $5, $6)`
	if len(recs) == 0 {
		return nil
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i := range recs {
			rec := &recs[i]
			if rec.ID == uuid.Nil {
				id, err := uuid.NewV4()
				if err != nil {
					return err
				}
				rec.ID = id
			}
			_, err := tx.Exec(ctx, q, rec.ID, rec.Token, string(rec.Type), rec.Reason, rec.RevokedByUserID, rec.RevokedFromIP)
			if isUniqueViolation(err) {
				return fmt.Errorf("%s: %w", rec.Type, errs.ErrAlreadyRevoked)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Exists reports whether token is present in the revocation store.
func (r *RevokedTokenRepo) Exists(ctx context.Context, token string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token = $1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, token).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
