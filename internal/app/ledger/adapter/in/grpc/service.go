package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPC 服務名稱
const ServiceName = "ledger.v1.StatementService"

// 方法全名
const (
	MethodDeposit      = "/" + ServiceName + "/Deposit"
	MethodWithdraw     = "/" + ServiceName + "/Withdraw"
	MethodGetBalance   = "/" + ServiceName + "/GetBalance"
	MethodGetStatement = "/" + ServiceName + "/GetStatement"
)

// StatementServiceServer 訊息一律使用 google.protobuf.Struct
//
//	Deposit/Withdraw  {amount, description} -> Statement
//	GetBalance        {}                    -> {statement: [...], balance}
//	GetStatement      {id}                  -> Statement
type StatementServiceServer interface {
	Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStatement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv StatementServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StatementServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StatementServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StatementServiceDesc 手寫的 ServiceDesc
var StatementServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatementServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deposit",
			Handler: unaryHandler(MethodDeposit, func(s StatementServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.Deposit(ctx, req)
			}),
		},
		{
			MethodName: "Withdraw",
			Handler: unaryHandler(MethodWithdraw, func(s StatementServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.Withdraw(ctx, req)
			}),
		},
		{
			MethodName: "GetBalance",
			Handler: unaryHandler(MethodGetBalance, func(s StatementServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.GetBalance(ctx, req)
			}),
		},
		{
			MethodName: "GetStatement",
			Handler: unaryHandler(MethodGetStatement, func(s StatementServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.GetStatement(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}
