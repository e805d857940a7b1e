package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the discriminator carried by every bearer token.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

func (t TokenType) valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// TokenPayload is the verified content of a bearer token.
type TokenPayload struct {
	UserID    uint64
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the JWT claim set signed into every token.
type Claims struct {
	UserID uint64    `json:"user_id"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithClock replaces the wall clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// TokenCodec signs and verifies HS256 access and refresh tokens.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewTokenCodec returns a codec for cfg. The secret must be set and both TTLs
// must be positive.
func NewTokenCodec(cfg config.JWTConfig, opts ...TokenCodecOption) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("jwt token ttl must be positive")
	}

	c := &TokenCodec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     cfg.Leeway,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (c *TokenCodec) AccessTokenTTL() time.Duration {
	return c.accessTTL
}

// IssueAccessToken signs a short-lived access token for userID.
func (c *TokenCodec) IssueAccessToken(userID uint64) (string, error) {
	return c.issue(userID, TokenTypeAccess, c.accessTTL)
}

// IssueRefreshToken signs a refresh token for userID.
func (c *TokenCodec) IssueRefreshToken(userID uint64) (string, error) {
	return c.issue(userID, TokenTypeRefresh, c.refreshTTL)
}

func (c *TokenCodec) issue(userID uint64, tokenType TokenType, ttl time.Duration) (string, error) {
	now := c.now()
	claims := &Claims{
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature, algorithm, issuer and expiry. Expiry yields
// ErrTokenExpired, every other failure ErrInvalidToken. Callers must still
// assert the token type, or use VerifyAs.
func (c *TokenCodec) Verify(tokenString string) (*TokenPayload, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || !claims.Type.valid() || claims.UserID == 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	return &TokenPayload{
		UserID:    claims.UserID,
		Type:      claims.Type,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyAs verifies the token and rejects it with ErrInvalidToken unless it
// carries the expected type.
func (c *TokenCodec) VerifyAs(tokenString string, expected TokenType) (*TokenPayload, error) {
	payload, err := c.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if payload.Type != expected {
		return nil, ErrInvalidToken
	}
	return payload, nil
}
