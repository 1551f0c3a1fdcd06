package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
)

// StatementClient StatementService 的用戶端
type StatementClient struct {
	cc grpc.ClientConnInterface
}

func NewStatementClient(cc grpc.ClientConnInterface) *StatementClient {
	return &StatementClient{cc: cc}
}

// BearerInterceptor 在每個請求帶上 authorization metadata
// 可搭配 pkg/grpc.WithInterceptor 使用
func BearerInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *StatementClient) Deposit(ctx context.Context, amount int64, description string) (*domain.Statement, error) {
	return c.post(ctx, MethodDeposit, amount, description)
}

func (c *StatementClient) Withdraw(ctx context.Context, amount int64, description string) (*domain.Statement, error) {
	return c.post(ctx, MethodWithdraw, amount, description)
}

func (c *StatementClient) GetBalance(ctx context.Context) (*usecase.BalanceView, error) {
	view := new(usecase.BalanceView)
	if err := c.invoke(ctx, MethodGetBalance, map[string]any{}, view); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *StatementClient) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	stmt := new(domain.Statement)
	if err := c.invoke(ctx, MethodGetStatement, map[string]any{"id": id}, stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (c *StatementClient) post(ctx context.Context, method string, amount int64, description string) (*domain.Statement, error) {
	stmt := new(domain.Statement)
	req := map[string]any{"amount": amount, "description": description}
	if err := c.invoke(ctx, method, req, stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (c *StatementClient) invoke(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, reply); err != nil {
		return err
	}
	raw, err := protojson.Marshal(reply)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(raw, out)
}
