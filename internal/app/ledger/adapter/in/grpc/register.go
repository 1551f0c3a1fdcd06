package grpc

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// NewServer 建立已註冊 StatementService、health 與 reflection 的 grpc.Server
//
// 參數:
//
//	ledger: 帳務操作
//	resolver: token 解析
//	logger: logger
//
// 回傳:
//
//	*grpc.Server: 尚未開始監聽的 server
//	*health.Server: 關機前可將狀態設為 NOT_SERVING
func NewServer(ledger LedgerService, resolver PrincipalResolver, logger *logging.Logger) (*grpc.Server, *health.Server) {
	logger = logger.Named("grpc")
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(logger),
			AuthInterceptor(resolver, logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			// Pool 的 client 每 10 秒 ping 一次
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	srv.RegisterService(&StatementServiceDesc, NewGrpcServer(ledger, logger))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv, hs
}
