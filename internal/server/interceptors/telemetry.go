package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-core/internal/logging"
	"identity-core/internal/telemetry"
)

// TelemetryUnary returns a unary server interceptor that records the duration and status code of
// each RPC and logs server-side failures. Never fails the RPC. skipMethods is the set of full
// method names to not record (e.g. health checks).
func TelemetryUnary(metrics *telemetry.Metrics, logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	logger = logging.OrNop(logger).Named("grpc")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		elapsed := time.Since(start)
		metrics.RPCDuration(ctx, info.FullMethod, code.String(), float64(elapsed.Microseconds())/1000)
		switch code {
		case codes.Internal, codes.Unavailable, codes.Unknown:
			principalID, _ := GetPrincipalID(ctx)
			logger.Warn("rpc failed",
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("duration", elapsed),
				zap.String("principal_id", principalID),
				zap.String("client_ip", ClientIP(ctx)),
			)
		}
		return resp, err
	}
}
