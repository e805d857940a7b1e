package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
)

const resetTokenBytes = 32

type resetTokenRepository interface {
	Create(ctx context.Context, token *entity.ResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*entity.ResetToken, error)
	MarkConsumed(ctx context.Context, id uint64, now time.Time) (bool, error)
	ConsumeAllByUserID(ctx context.Context, userID uint64, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type ResetTokenManagerOption func(*ResetTokenManager)

func WithResetClock(now func() time.Time) ResetTokenManagerOption {
	return func(m *ResetTokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// ResetTokenManager issues opaque single-use password-reset secrets and
// consumes them. The cleartext secret is never persisted.
type ResetTokenManager struct {
	repo resetTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewResetTokenManager(repo resetTokenRepository, ttl time.Duration, opts ...ResetTokenManagerOption) *ResetTokenManager {
	m := &ResetTokenManager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a reset secret for userID and stores its digest. The returned
// cleartext is meant for delivery only.
func (m *ResetTokenManager) Issue(ctx context.Context, userID uint64) (string, error) {
	secret := make([]byte, resetTokenBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(secret)

	now := m.now()
	record := &entity.ResetToken{
		UserID:    userID,
		TokenHash: m.Hash(token),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, record); err != nil {
		return "", err
	}

	return token, nil
}

// Hash is the deterministic lookup digest of a reset secret.
func (m *ResetTokenManager) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Consume marks the record matching token as used and returns its owner.
// Unknown, expired and already consumed tokens all yield
// ErrInvalidOrExpiredResetToken. Of concurrent callers presenting the same
// token at most one succeeds.
func (m *ResetTokenManager) Consume(ctx context.Context, token string) (uint64, error) {
	if token == "" {
		return 0, ErrInvalidOrExpiredResetToken
	}

	record, err := m.repo.FindByHash(ctx, m.Hash(token))
	if err != nil {
		return 0, err
	}

	now := m.now()
	if record == nil || !record.Actionable(now) {
		return 0, ErrInvalidOrExpiredResetToken
	}

	consumed, err := m.repo.MarkConsumed(ctx, record.ID, now)
	if err != nil {
		return 0, err
	}
	if !consumed {
		return 0, ErrInvalidOrExpiredResetToken
	}

	return record.UserID, nil
}

// RevokeAll consumes every outstanding reset token of userID.
func (m *ResetTokenManager) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := m.repo.ConsumeAllByUserID(ctx, userID, m.now())
	return err
}

// PurgeExpired deletes records that expired or were consumed before the given time.
func (m *ResetTokenManager) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, errors.New("purge cutoff is required")
	}
	return m.repo.DeleteExpired(ctx, before)
}
