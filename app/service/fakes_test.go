package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type memoryUserRepo struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]*entity.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uint64]*entity.User)}
}

func (r *memoryUserRepo) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.CanonicalEmail == user.CanonicalEmail {
			return repository.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

// put stores user under its own ID.
func (r *memoryUserRepo) put(user *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *user
	r.users[user.ID] = &stored
	if user.ID > r.nextID {
		r.nextID = user.ID
	}
}

func (r *memoryUserRepo) FindByCanonicalEmail(_ context.Context, canonicalEmail string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.CanonicalEmail == canonicalEmail {
			found := *u
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, id uint64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	found := *u
	return &found, nil
}

func (r *memoryUserRepo) UpdatePasswordHash(_ context.Context, id uint64, passwordHash string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	return nil
}

type memoryResetRepo struct {
	mu     sync.Mutex
	nextID uint64
	tokens map[uint64]*entity.ResetToken
}

func newMemoryResetRepo() *memoryResetRepo {
	return &memoryResetRepo{tokens: make(map[uint64]*entity.ResetToken)}
}

func (r *memoryResetRepo) Create(_ context.Context, token *entity.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	token.ID = r.nextID
	stored := *token
	r.tokens[token.ID] = &stored
	return nil
}

func (r *memoryResetRepo) FindByHash(_ context.Context, tokenHash string) (*entity.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			found := *t
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryResetRepo) MarkConsumed(_ context.Context, id uint64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || !t.Actionable(now) {
		return false, nil
	}
	t.ConsumedAt = sql.NullTime{Time: now, Valid: true}
	return true, nil
}

func (r *memoryResetRepo) ConsumeAllByUserID(_ context.Context, userID uint64, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.ConsumedAt.Valid {
			t.ConsumedAt = sql.NullTime{Time: now, Valid: true}
			n++
		}
	}
	return n, nil
}

func (r *memoryResetRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(before) || (t.ConsumedAt.Valid && t.ConsumedAt.Time.Before(before)) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryResetRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

func (r *memoryResetRepo) outstanding(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.UserID == userID && !t.ConsumedAt.Valid {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          testSecret,
			Issuer:          "credentials-test",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{
				MinLength:        8,
				RequireUppercase: true,
				RequireLowercase: true,
				RequireNumber:    true,
			},
			BcryptCost: bcrypt.MinCost,
		},
		Reset: config.ResetConfig{
			TokenTTL: time.Hour,
			URLBase:  "https://app.example.com/reset-password",
		},
	}
}

type testEnv struct {
	svc    *service.AuthService
	users  *memoryUserRepo
	resets *memoryResetRepo
	tokens *service.TokenCodec
	reset  *service.ResetTokenManager
	hasher *service.PasswordHasher
	sink   *recordingSink
}

type sentReset struct {
	Email    string
	ResetURL string
}

// recordingSink keeps every reset link it is handed so tests can follow it.
type recordingSink struct {
	mu       sync.Mutex
	messages []sentReset
	err      error
}

func (s *recordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingSink) SendPasswordReset(_ context.Context, email, resetURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, sentReset{Email: email, ResetURL: resetURL})
	return nil
}

func (s *recordingSink) Messages() []sentReset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentReset, len(s.messages))
	copy(out, s.messages)
	return out
}

func syncRunner(task func()) {
	task()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	tokens, err := service.NewTokenCodec(cfg.JWT)
	if err != nil {
		t.Fatalf("failed to create token codec: %v", err)
	}

	env := &testEnv{
		users:  newMemoryUserRepo(),
		resets: newMemoryResetRepo(),
		tokens: tokens,
		hasher: service.NewPasswordHasher(cfg.Password.BcryptCost),
		sink:   &recordingSink{},
	}
	env.reset = service.NewResetTokenManager(env.resets, cfg.Reset.TokenTTL)
	env.svc = service.NewAuthService(env.users, env.hasher, env.tokens, env.reset, env.sink, cfg,
		service.WithAsyncRunner(syncRunner))
	return env
}

// seedUser stores a user with a real bcrypt hash of password.
func (e *testEnv) seedUser(t *testing.T, id uint64, email, password string) *entity.User {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	now := time.Now()
	user := &entity.User{
		ID:             id,
		Email:          email,
		CanonicalEmail: service.CanonicalizeEmail(email),
		PasswordHash:   hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.users.put(user)
	return user
}
