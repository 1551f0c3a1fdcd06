package http

import (
	"context"

	"github.com/google/uuid"

	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
)

// LedgerService 帳務操作，由 usecase.CoreUseCase 實作
type LedgerService interface {
	Deposit(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*usecase.BalanceView, error)
	Lookup(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error)
}

// IdentityService 使用者與 session，由 identity usecase.Service 實作
type IdentityService interface {
	Register(ctx context.Context, reg identity.Registration) (*identity.User, error)
	Authenticate(ctx context.Context, email, password string) (*identity.Session, error)
	Profile(ctx context.Context, userID uuid.UUID) (*identity.User, error)
	ResolvePrincipal(ctx context.Context, token string) (*identity.Principal, error)
}
