package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// LedgerService 帳務操作，由 usecase.CoreUseCase 實作
type LedgerService interface {
	Deposit(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*usecase.BalanceView, error)
	Lookup(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error)
}

// maxSafeAmount JSON number (float64) 可精確表示的最大整數
const maxSafeAmount = 1 << 53

type GrpcServer struct {
	ledger LedgerService
	logger *logging.Logger
}

func NewGrpcServer(ledger LedgerService, logger *logging.Logger) *GrpcServer {
	return &GrpcServer{
		ledger: ledger,
		logger: logger.Named("grpc"),
	}
}

func (s *GrpcServer) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.post(ctx, req, s.ledger.Deposit)
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.post(ctx, req, s.ledger.Withdraw)
}

type postFunc func(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error)

func (s *GrpcServer) post(ctx context.Context, req *structpb.Struct, fn postFunc) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	// 1. 解析金額，只接受整數
	amount, err := amountField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	description := req.GetFields()["description"].GetStringValue()

	// 2. 執行交易
	stmt, err := fn(ctx, p.AccountID, amount, description)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(stmt)
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.ledger.Balance(ctx, p.AccountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(view)
}

func (s *GrpcServer) GetStatement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	id := req.GetFields()["id"].GetStringValue()
	stmt, err := s.ledger.Lookup(ctx, p.AccountID, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(stmt)
}

func amountField(req *structpb.Struct) (int64, error) {
	v, ok := req.GetFields()["amount"]
	if !ok {
		return 0, errors.New("amount is required")
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, errors.New("amount must be a number")
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > maxSafeAmount {
		return 0, errors.New("amount must be an integer in minor units")
	}
	return int64(f), nil
}

// toStatus 將領域錯誤轉成 gRPC status
func (s *GrpcServer) toStatus(err error) error {
	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrStatementNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, identity.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// toStruct 以 JSON 欄位名稱轉成 Struct
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

var _ StatementServiceServer = (*GrpcServer)(nil)
