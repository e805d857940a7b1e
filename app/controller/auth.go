package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-credentials/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-credentials/app/dto/http"
	"github.com/vibast-solutions/ms-go-credentials/app/identity"
	"github.com/vibast-solutions/ms-go-credentials/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	resetRequestedMessage = "if the account exists, a password reset link has been sent"
	unauthorizedMessage   = "unauthorized"
)

var errInvalidBody = errors.New("invalid request body")

type authService interface {
	Register(ctx context.Context, email, password string) (*dto.AuthResult, error)
	Login(ctx context.Context, email, password string) (*dto.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error
}

type AuthController struct {
	authService authService
}

func NewAuthController(authService authService) *AuthController {
	return &AuthController{authService: authService}
}

func (c *AuthController) Register(ctx echo.Context) error {
	var req httpdto.RegisterRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Register validation failed")
		return badRequest(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	result, err := c.authService.Register(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		logFailure(err, "Register failed")
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", result.User.ID).Info("User registered")
	return ctx.JSON(http.StatusCreated, httpdto.NewAuthResponse(result))
}

func (c *AuthController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Login validation failed")
		return badRequest(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	result, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		logFailure(err, "Login failed")
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", result.User.ID).Info("User logged in")
	return ctx.JSON(http.StatusOK, httpdto.NewAuthResponse(result))
}

func (c *AuthController) RefreshToken(ctx echo.Context) error {
	var req httpdto.RefreshTokenRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Refresh token validation failed")
		return badRequest(ctx, err)
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken)
	if err != nil {
		logFailure(err, "Refresh token failed")
		return respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, httpdto.NewTokenResponse(pair))
}

func (c *AuthController) RequestPasswordReset(ctx echo.Context) error {
	var req httpdto.RequestPasswordResetRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Password reset request validation failed")
		return badRequest(ctx, err)
	}

	if err := c.authService.RequestPasswordReset(ctx.Request().Context(), req.Email); err != nil {
		logFailure(err, "Password reset request failed")
		return respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: resetRequestedMessage})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	var req httpdto.ResetPasswordRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Reset password validation failed")
		return badRequest(ctx, err)
	}

	if err := c.authService.CompletePasswordReset(ctx.Request().Context(), req.Token, req.NewPassword); err != nil {
		logFailure(err, "Reset password failed")
		return respondError(ctx, err)
	}

	logrus.Info("Password reset completed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password has been reset"})
}

func (c *AuthController) ChangePassword(ctx echo.Context) error {
	userID, ok := identity.UserIDFromContext(ctx.Request().Context())
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: unauthorizedMessage})
	}

	var req httpdto.ChangePasswordRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		logrus.WithError(err).Debug("Change password validation failed")
		return badRequest(ctx, err)
	}

	if err := c.authService.ChangePassword(ctx.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		logFailure(err, "Change password failed")
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", userID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password changed"})
}

func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := identity.UserIDFromContext(ctx.Request().Context())
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: unauthorizedMessage})
	}
	return ctx.JSON(http.StatusOK, httpdto.MeResponse{UserID: userID})
}

func bindAndValidate(ctx echo.Context, req any) error {
	if err := ctx.Bind(req); err != nil {
		return errInvalidBody
	}
	return ctx.Validate(req)
}

func badRequest(ctx echo.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
}

// StatusFor maps an auth core error to its HTTP status.
func StatusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized, service.KindInvalidToken, service.KindTokenExpired:
		return http.StatusUnauthorized
	case service.KindInvalidOrExpiredResetToken, service.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx echo.Context, err error) error {
	status := StatusFor(err)
	switch service.KindOf(err) {
	case service.KindInvalidToken, service.KindTokenExpired:
		// Expired and malformed tokens must be indistinguishable to the caller.
		return ctx.JSON(status, httpdto.ErrorResponse{Error: unauthorizedMessage})
	}
	if status == http.StatusInternalServerError {
		return ctx.JSON(status, httpdto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.JSON(status, httpdto.ErrorResponse{Error: err.Error()})
}

func logFailure(err error, msg string) {
	if StatusFor(err) == http.StatusInternalServerError {
		logrus.WithError(err).Error(msg)
		return
	}
	logrus.WithField("reason", service.KindOf(err).String()).Warn(msg)
}
