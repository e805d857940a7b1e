package grpc

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-credentials/app/identity"
	"github.com/vibast-solutions/ms-go-credentials/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type accessTokenVerifier interface {
	VerifyAs(tokenString string, expected service.TokenType) (*service.TokenPayload, error)
}

type authConfig struct {
	publicMethods []string
}

type AuthInterceptorOption func(*authConfig)

// WithPublicMethods exempts methods from authentication. An entry ending in
// "/" matches every method of that service, e.g. "/grpc.health.v1.Health/".
func WithPublicMethods(methods ...string) AuthInterceptorOption {
	return func(c *authConfig) {
		c.publicMethods = append(c.publicMethods, methods...)
	}
}

func (c *authConfig) isPublic(fullMethod string) bool {
	for _, m := range c.publicMethods {
		if m == fullMethod || (strings.HasSuffix(m, "/") && strings.HasPrefix(fullMethod, m)) {
			return true
		}
	}
	return false
}

func newAuthConfig(opts []AuthInterceptorOption) *authConfig {
	cfg := &authConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func AuthUnaryInterceptor(tokens accessTokenVerifier, opts ...AuthInterceptorOption) gogrpc.UnaryServerInterceptor {
	cfg := newAuthConfig(opts)
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if cfg.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}

		userID, err := authenticate(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return handler(identity.WithUserID(ctx, userID), req)
	}
}

func AuthStreamInterceptor(tokens accessTokenVerifier, opts ...AuthInterceptorOption) gogrpc.StreamServerInterceptor {
	cfg := newAuthConfig(opts)
	return func(srv any, ss gogrpc.ServerStream, info *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		if cfg.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}

		userID, err := authenticate(ss.Context(), tokens)
		if err != nil {
			return err
		}
		ctx := identity.WithUserID(ss.Context(), userID)
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, tokens accessTokenVerifier) (uint64, error) {
	header := incomingAuthorization(ctx)
	if header == "" {
		logrus.Debug("Missing authorization metadata (grpc)")
		return 0, status.Error(codes.Unauthenticated, "unauthorized")
	}

	tokenString, ok := identity.BearerToken(header)
	if !ok {
		logrus.Debug("Invalid authorization metadata format (grpc)")
		return 0, status.Error(codes.Unauthenticated, "unauthorized")
	}

	payload, err := tokens.VerifyAs(tokenString, service.TokenTypeAccess)
	if err != nil {
		logrus.WithField("reason", service.KindOf(err).String()).Debug("Rejected access token (grpc)")
		return 0, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return payload.UserID, nil
}

func incomingAuthorization(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type wrappedServerStream struct {
	gogrpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
