package dto

import "github.com/vibast-solutions/ms-go-credentials/app/entity"

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type AuthResult struct {
	User *entity.User
	TokenPair
}
