package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
)

// BalanceView 餘額與帳目明細
type BalanceView struct {
	Statements []*domain.Statement `json:"statement"`
	Balance    int64               `json:"balance"`
}

// CurrentBalance 取得帳戶餘額 (以快取欄位為準)
func (c *CoreUseCase) CurrentBalance(ctx context.Context, accountID uuid.UUID) (balance int64, err error) {
	start := c.now()
	defer func() { c.observe("current_balance", start, err) }()

	acc, err := c.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// StatementHistory 帳目明細，依建立順序
func (c *CoreUseCase) StatementHistory(ctx context.Context, accountID uuid.UUID) ([]*domain.Statement, error) {
	return c.ledger.ListStatements(ctx, accountID)
}

// Balance 從同一個快照回傳餘額與明細
// 快取餘額與帳目總和不一致時回傳 ErrLedgerDiverged
func (c *CoreUseCase) Balance(ctx context.Context, accountID uuid.UUID) (view *BalanceView, err error) {
	start := c.now()
	defer func() { c.observe("balance", start, err) }()

	snap, err := c.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !snap.Consistent() {
		c.metrics.RecordDivergence()
		c.logger.Error("balance diverged from ledger",
			zap.String("account_id", accountID.String()),
			zap.Int64("cached", snap.Account.Balance),
			zap.Int64("ledger_sum", snap.LedgerSum()),
		)
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrLedgerDiverged)
	}

	statements := snap.Statements
	if statements == nil {
		statements = []*domain.Statement{}
	}
	return &BalanceView{
		Statements: statements,
		Balance:    snap.Account.Balance,
	}, nil
}
