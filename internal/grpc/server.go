package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"mediaLending/internal/apperr"
	"mediaLending/internal/auth"
	"mediaLending/internal/lending"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps are the collaborators of the gRPC server.
type Deps struct {
	Lending   *lending.Service
	Users     auth.UserLookup
	JWTSecret string
	Logger    *zap.Logger
}

// NewServer builds a gRPC server with the maintenance and health services.
// Every method except the health check requires a bearer JWT.
func NewServer(d Deps) *grpc.Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(d.Logger),
		auth.NewUnaryAuthInterceptor(d.JWTSecret, healthCheckMethod),
	))

	RegisterMaintenanceServer(srv, &Maintenance{Lending: d.Lending, Users: d.Users})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(MaintenanceServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Start serves on addr and returns a shutdown function that drains
// in-flight calls until ctx expires.
func Start(addr string, d Deps) (func(context.Context) error, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := NewServer(d)
	go func() {
		if err := srv.Serve(lis); err != nil {
			d.Logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// toStatus maps a domain error to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		code = codes.NotFound
	case apperr.KindBadRequest:
		code = codes.InvalidArgument
	case apperr.KindForbidden:
		code = codes.PermissionDenied
	case apperr.KindUnauthorized:
		code = codes.Unauthenticated
	case apperr.KindConflict:
		code = codes.AlreadyExists
	case apperr.KindRateLimited:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}
	return status.Error(code, apperr.Message(err))
}
