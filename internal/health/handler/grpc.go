// Package handler serves grpc.health.v1 readiness backed by dependency checks.
package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"identity-core/internal/logging"
)

const checkTimeout = 2 * time.Second

// Check is one readiness dependency (database, cache, policy engine).
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server is the standard gRPC health server whose status follows its checks. The overall
// status ("") and each name in services are set together.
type Server struct {
	hs       *health.Server
	checks   []Check
	services []string
	logger   *zap.Logger
}

// NewServer returns a Server reporting NOT_SERVING until the first CheckNow.
func NewServer(services []string, logger *zap.Logger, checks ...Check) *Server {
	s := &Server{
		hs:       health.NewServer(),
		checks:   checks,
		services: append([]string{""}, services...),
		logger:   logging.OrNop(logger).Named("health"),
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register registers grpc.health.v1.Health on r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.hs)
}

// CheckNow runs every check and updates the served status. Reports whether all passed.
func (s *Server) CheckNow(ctx context.Context) bool {
	ok := true
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			ok = false
			s.logger.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
		}
	}
	if ok {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

// Run re-checks every interval until ctx ends.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.CheckNow(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.CheckNow(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service from now on; used when draining.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	for _, svc := range s.services {
		s.hs.SetServingStatus(svc, st)
	}
}
