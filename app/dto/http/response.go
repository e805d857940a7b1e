package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/dto"
	"github.com/vibast-solutions/ms-go-credentials/app/entity"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse is the public view of a user. The password hash is never
// serialized.
type UserResponse struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthResponse struct {
	User UserResponse `json:"user"`
	TokenResponse
}

type MeResponse struct {
	UserID uint64 `json:"user_id"`
}

func NewUserResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

func NewTokenResponse(pair *dto.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

func NewAuthResponse(result *dto.AuthResult) AuthResponse {
	return AuthResponse{
		User:          NewUserResponse(result.User),
		TokenResponse: NewTokenResponse(&result.TokenPair),
	}
}
