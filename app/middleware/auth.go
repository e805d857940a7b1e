package middleware

import (
	"net/http"

	"github.com/vibast-solutions/ms-go-credentials/app/identity"
	"github.com/vibast-solutions/ms-go-credentials/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ContextKeyUserID is the echo context key holding the authenticated user ID.
const ContextKeyUserID = "user_id"

type accessTokenVerifier interface {
	VerifyAs(tokenString string, expected service.TokenType) (*service.TokenPayload, error)
}

type AuthMiddleware struct {
	tokens accessTokenVerifier
}

func NewAuthMiddleware(tokens accessTokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth admits requests carrying a valid access token. Every rejection
// produces the same 401 body so callers cannot tell the failure apart.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return unauthorized(c)
		}

		tokenString, ok := identity.BearerToken(authHeader)
		if !ok {
			logrus.Debug("Invalid authorization header format")
			return unauthorized(c)
		}

		payload, err := m.tokens.VerifyAs(tokenString, service.TokenTypeAccess)
		if err != nil {
			logrus.WithField("reason", service.KindOf(err).String()).Debug("Rejected access token")
			return unauthorized(c)
		}

		c.Set(ContextKeyUserID, payload.UserID)
		req := c.Request()
		c.SetRequest(req.WithContext(identity.WithUserID(req.Context(), payload.UserID)))

		return next(c)
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error": "unauthorized",
	})
}
