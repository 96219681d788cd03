package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	authv1 "identity-core/api/auth/v1"
	"identity-core/internal/config"
	healthhandler "identity-core/internal/health/handler"
	"identity-core/internal/logging"
	"identity-core/internal/platform/rbac"
	"identity-core/internal/server"
	"identity-core/internal/server/interceptors"
	"identity-core/internal/telemetry"
	otelsetup "identity-core/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	app, err := build(ctx, cfg, providers, metrics, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	health := healthhandler.NewServer([]string{authv1.AuthService_ServiceDesc.ServiceName}, logger, app.checks...)
	go health.Run(ctx, cfg.HealthInterval())

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	defer lis.Close()

	trusted, err := interceptors.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	deps := server.Deps{
		Auth:           app.auth,
		Verifier:       app.tokens,
		Operators:      rbac.ParseOperators(cfg.OperatorPrincipals),
		TrustedProxies: trusted,
		Health:         health,
		Metrics:        metrics,
		Logger:         logger,
	}
	if app.devOTP != nil {
		deps.DevOTP = app.devOTP
		logger.Warn("dev OTP retrieval enabled; one-time codes are not delivered")
	}
	s := server.NewServer(deps)

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := s.Serve(lis); err != nil {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gRPC server")
	health.Shutdown()
	s.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.close(shutdownCtx)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("gRPC server stopped")
}
