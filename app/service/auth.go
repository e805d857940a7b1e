package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/dto"
	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
	"github.com/vibast-solutions/ms-go-credentials/app/notify"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/sirupsen/logrus"
)

const (
	notificationTimeout = 10 * time.Second
	// Compared against when the email is unknown so both login failures cost a bcrypt round.
	dummyPassword = "credentials-timing-equalizer"
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error)
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	UpdatePasswordHash(ctx context.Context, id uint64, passwordHash string, updatedAt time.Time) error
}

type AsyncRunner func(task func())

type AuthServiceOption func(*AuthService)

func WithAsyncRunner(runner AsyncRunner) AuthServiceOption {
	return func(s *AuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

// AuthService composes the hasher, the token codec and the reset token
// manager into the register, login, refresh and password reset flows.
type AuthService struct {
	userRepo     userRepository
	hasher       *PasswordHasher
	tokens       *TokenCodec
	resets       *ResetTokenManager
	sink         notify.Sink
	policy       config.PasswordPolicy
	resetURLBase string
	asyncRunner  AsyncRunner

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	userRepo userRepository,
	hasher *PasswordHasher,
	tokens *TokenCodec,
	resets *ResetTokenManager,
	sink notify.Sink,
	cfg *config.Config,
	opts ...AuthServiceOption,
) *AuthService {
	svc := &AuthService{
		userRepo:     userRepo,
		hasher:       hasher,
		tokens:       tokens,
		resets:       resets,
		sink:         sink,
		policy:       cfg.Password.Policy,
		resetURLBase: cfg.Reset.URLBase,
		asyncRunner: func(task func()) {
			go task()
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *AuthService) Register(ctx context.Context, email, password string) (result *dto.AuthResult, err error) {
	defer observe("register", &err)

	canonicalEmail := CanonicalizeEmail(email)
	existing, err := s.userRepo.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	if err = s.policy.Validate(password); err != nil {
		return nil, weakPasswordError(err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Email:          strings.TrimSpace(email),
		CanonicalEmail: canonicalEmail,
		PasswordHash:   passwordHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, TokenPair: *pair}, nil
}

// Login returns ErrInvalidCredentials for an unknown email and for a wrong
// password alike.
func (s *AuthService) Login(ctx context.Context, email, password string) (result *dto.AuthResult, err error) {
	defer observe("login", &err)

	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		_, _ = s.hasher.Verify(password, s.timingHash())
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, TokenPair: *pair}, nil
}

// Refresh exchanges a refresh token for a new access/refresh pair. The old
// refresh token is not revoked and stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *dto.TokenPair, err error) {
	defer observe("refresh", &err)

	payload, err := s.tokens.VerifyAs(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, payload.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return s.issuePair(user.ID)
}

// RequestPasswordReset succeeds whether or not the email belongs to a user.
// Both paths return after the user lookup: for a known user the reset token is
// issued and its link dispatched asynchronously, and failures in either step
// are logged and never returned.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer observe("request_reset", &err)

	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		logrus.Debug("Password reset requested for unknown email")
		return nil
	}

	recipient := user.Email
	userID := user.ID
	s.asyncRunner(func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		token, issueErr := s.resets.Issue(taskCtx, userID)
		if issueErr != nil {
			metrics.ResetNotificationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			logrus.WithError(issueErr).WithField("user_id", userID).Error("Failed to issue password reset token")
			return
		}

		if sendErr := s.sink.SendPasswordReset(taskCtx, recipient, ResetURL(s.resetURLBase, token)); sendErr != nil {
			metrics.ResetNotificationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			logrus.WithError(sendErr).WithField("user_id", userID).Warn("Failed to deliver password reset notification")
			return
		}
		metrics.ResetNotificationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	})

	return nil
}

// CompletePasswordReset consumes the reset token and overwrites the owner's
// credential. The new password is validated and hashed before the token is
// consumed.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer observe("complete_reset", &err)

	if err = s.policy.Validate(newPassword); err != nil {
		return weakPasswordError(err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, token)
	if err != nil {
		return err
	}

	if err = s.userRepo.UpdatePasswordHash(ctx, userID, passwordHash, time.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredResetToken
		}
		return err
	}

	s.revokeResetTokens(ctx, userID)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) (err error) {
	defer observe("change_password", &err)

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPasswordMismatch
	}

	if err = s.policy.Validate(newPassword); err != nil {
		return weakPasswordError(err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err = s.userRepo.UpdatePasswordHash(ctx, user.ID, passwordHash, time.Now()); err != nil {
		return err
	}

	s.revokeResetTokens(ctx, user.ID)
	return nil
}

func (s *AuthService) issuePair(userID uint64) (*dto.TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(TokenTypeAccess)).Inc()

	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(TokenTypeRefresh)).Inc()

	return &dto.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

func (s *AuthService) revokeResetTokens(ctx context.Context, userID uint64) {
	if err := s.resets.RevokeAll(ctx, userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to revoke outstanding reset tokens")
	}
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			logrus.WithError(err).Error("Failed to prepare timing hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func observe(operation string, err *error) {
	outcome := metrics.OutcomeSuccess
	if *err != nil {
		switch KindOf(*err) {
		case KindUnknown, KindHashing:
			outcome = metrics.OutcomeError
		default:
			outcome = metrics.OutcomeRejected
		}
	}
	metrics.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ResetURL appends token as the "token" query parameter of base.
func ResetURL(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// CanonicalizeEmail normalizes an email address for uniqueness checks.
// For Gmail/Googlemail: strips dots from local part and removes +suffix.
// For all domains: lowercases the entire address.
func CanonicalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}

	if domain == "gmail.com" || domain == "googlemail.com" {
		if idx := strings.Index(local, "+"); idx != -1 {
			local = local[:idx]
		}
		local = strings.ReplaceAll(local, ".", "")
	}

	return local + "@" + domain
}
