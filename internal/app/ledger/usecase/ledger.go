package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
)

// AccountStore 每個身分一個帳戶
type AccountStore interface {
	// CreateAccount 在使用者註冊時開戶
	CreateAccount(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error)
	// GetAccount 取得帳戶
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	// GetAccountByOwner 以使用者身分取得帳戶
	GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error)
	// ListAccounts 列出所有帳戶 (對帳用)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
}

// StatementLedger 只能附加的帳目集合
type StatementLedger interface {
	// ListStatements 依 created_at, id 排序
	ListStatements(ctx context.Context, accountID uuid.UUID) ([]*domain.Statement, error)
	// GetStatement 只回傳屬於 accountID 的帳目，其餘一律 ErrStatementNotFound
	GetStatement(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error)
	// Snapshot 同一時間點讀出帳戶與帳目
	Snapshot(ctx context.Context, accountID uuid.UUID) (*domain.Snapshot, error)
}

// Ledger 是帳務系統的儲存介面
type Ledger interface {
	AccountStore
	StatementLedger
	// Post 帳戶的唯一寫入口
	// 同一帳戶的 Post 必須互斥執行，讀餘額、檢查、附加帳目、更新餘額為一個不可分割的單位；
	// 不同帳戶之間不可互相阻塞
	Post(ctx context.Context, draft *domain.Draft) (*domain.Statement, *domain.Account, error)
}
