package grpc

import (
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// NewServer returns a gRPC server with the bearer token interceptors
// installed and the standard health service registered as public.
func NewServer(tokens accessTokenVerifier) (*gogrpc.Server, *health.Server) {
	server := gogrpc.NewServer(
		gogrpc.UnaryInterceptor(AuthUnaryInterceptor(tokens, WithPublicMethods(healthServicePrefix))),
		gogrpc.StreamInterceptor(AuthStreamInterceptor(tokens, WithPublicMethods(healthServicePrefix))),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	return server, healthServer
}
