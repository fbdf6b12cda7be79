package middleware

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// AuthorizationMetadataKey is the gRPC metadata key carrying "Bearer <token>".
const AuthorizationMetadataKey = "authorization"

// MethodPolicy decides which full method names need which roles.
//
// Public methods skip authentication. Methods listed in Roles require one of
// the listed roles; every other method requires any authenticated caller.
type MethodPolicy struct {
	Public map[string]bool
	Roles  map[string][]permission.Role
}

// UnaryServerInterceptor guards unary RPCs with engine according to policy.
func UnaryServerInterceptor(engine *authcore.Engine, policy MethodPolicy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if policy.Public[info.FullMethod] {
			return handler(ctx, req)
		}
		if engine == nil {
			return nil, status.Error(codes.Unauthenticated, "unauthenticated")
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(AuthorizationMetadataKey); len(values) > 0 {
				header = values[0]
			}
		}
		token, ok := BearerToken(header)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		res, err := engine.Authenticate(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unauthenticated")
		}

		if err := engine.Authorize(res.Role, policy.Roles[info.FullMethod]...); err != nil {
			if errors.Is(err, authcore.ErrForbidden) && !engine.ConcealForbidden() {
				return nil, status.Error(codes.PermissionDenied, "forbidden")
			}
			return nil, status.Error(codes.Unauthenticated, "unauthenticated")
		}

		return handler(WithAuthResult(ctx, res), req)
	}
}
