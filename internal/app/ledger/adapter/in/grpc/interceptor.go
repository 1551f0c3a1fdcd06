package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// PrincipalResolver 由 token 解析呼叫者
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (*identity.Principal, error)
}

type principalKey struct{}

func principalFrom(ctx context.Context) (*identity.Principal, error) {
	p, ok := ctx.Value(principalKey{}).(*identity.Principal)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return p, nil
}

// AuthInterceptor 驗證 metadata 中的 authorization: Bearer <token>
// 只保護 StatementService，health 與 reflection 不需驗證
func AuthInterceptor(resolver PrincipalResolver, logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		token := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for _, v := range md.Get("authorization") {
				if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
					token = strings.TrimSpace(v[7:])
					break
				}
			}
		}
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		p, err := resolver.ResolvePrincipal(ctx, token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			logger.Error("resolve principal failed", zap.Error(err))
			return nil, status.Error(codes.Internal, "internal error")
		}
		return handler(context.WithValue(ctx, principalKey{}, p), req)
	}
}

// LoggingInterceptor 記錄每個請求的結果與耗時
func LoggingInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Warn("rpc failed", fields...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}
