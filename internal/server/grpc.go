// Package server assembles the gRPC server: interceptor chain, OpenTelemetry stats handler, and
// service registration.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "identity-core/api/auth/v1"
	authhandler "identity-core/internal/auth/handler"
	authservice "identity-core/internal/auth/service"
	healthhandler "identity-core/internal/health/handler"
	"identity-core/internal/platform/rbac"
	"identity-core/internal/server/interceptors"
	"identity-core/internal/telemetry"
)

// Deps holds the service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the auth orchestrator. If nil, auth RPCs return Unimplemented.
	Auth *authservice.Service
	// Verifier validates bearer tokens for protected RPCs.
	Verifier interceptors.AccessVerifier
	// Operators may call SetAccountStatus.
	Operators rbac.Operators
	// Health is the readiness server. If nil, grpc.health.v1 is not registered.
	Health *healthhandler.Server
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies interceptors.TrustedProxies
	// DevOTP serves DevService (GetOTP). If nil, DevService is not registered. Set only when dev
	// OTP is enabled and not production.
	DevOTP  authhandler.CodeLookup
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// PublicMethods are callable without a bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		authv1.AuthService_Login_FullMethodName:           true,
		authv1.AuthService_VerifyChallenge_FullMethodName: true,
		authv1.AuthService_Refresh_FullMethodName:         true,
		authv1.AuthService_Logout_FullMethodName:          true,
		authv1.AuthService_Register_FullMethodName:        true,
		authv1.DevService_GetOTP_FullMethodName:           true,
		healthpb.Health_Check_FullMethodName:              true,
		healthpb.Health_Watch_FullMethodName:              true,
	}
}

// NewServer returns a gRPC server with the interceptor chain and all services registered.
// Interceptor order: client address, telemetry, bearer auth.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	skip := map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ClientIPUnary(deps.TrustedProxies),
			interceptors.TelemetryUnary(deps.Metrics, deps.Logger, skip),
			interceptors.AuthUnary(deps.Verifier, PublicMethods()),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - identity.auth.v1.AuthService → internal/auth/handler
//   - identity.auth.v1.DevService  → internal/auth/handler (dev only)
//   - grpc.health.v1.Health        → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authv1.RegisterAuthServiceServer(s, authhandler.NewAuthServer(deps.Auth, deps.Operators, deps.Logger))
	if deps.Health != nil {
		deps.Health.Register(s)
	}
	if deps.DevOTP != nil {
		authv1.RegisterDevServiceServer(s, authhandler.NewDevServer(deps.DevOTP))
	}
}
