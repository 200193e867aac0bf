package health

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// Gate is the part of a component the interceptors consult.
type Gate interface {
	FQN() string
	Status() lifecycle.Status
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// rejects calls with codes.Unavailable unless gate is enabled. Mount it on
// the server owned by a component so that requests do not reach handlers
// while the component is initializing, reinitializing or failed.
func UnaryServerInterceptor(gate Gate) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := admit(gate); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor]. Only the stream's opening is gated.
func StreamServerInterceptor(gate Gate) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := admit(gate); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func admit(gate Gate) error {
	if s := gate.Status(); s != lifecycle.StatusEnabled {
		return status.Errorf(codes.Unavailable, "%s is %s", gate.FQN(), s)
	}
	return nil
}
