package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
)

type ResetTokenRepository struct {
	db DBTX
}

func NewResetTokenRepository(db DBTX) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token *entity.ResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

func (r *ResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.ResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, consumed_at, created_at
		FROM password_reset_tokens WHERE token_hash = ?
	`
	token := &entity.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.ConsumedAt,
		&token.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// MarkConsumed flags the token as used if it is still unconsumed and
// unexpired at now. It reports whether this call performed the transition.
func (r *ResetTokenRepository) MarkConsumed(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE password_reset_tokens SET consumed_at = ?
		WHERE id = ? AND consumed_at IS NULL AND expires_at > ?
	`
	result, err := r.db.ExecContext(ctx, query, now, id, now)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *ResetTokenRepository) ConsumeAllByUserID(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	query := `
		UPDATE password_reset_tokens SET consumed_at = ?
		WHERE user_id = ? AND consumed_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, now, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE expires_at < ? OR consumed_at < ?
	`
	result, err := r.db.ExecContext(ctx, query, before, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
