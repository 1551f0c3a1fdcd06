package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
)

// Deposit 存款
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	amount: 金額 (最小貨幣單位，須為正數)
//	description: 說明 (不可為空)
//
// 回傳:
//
//	*domain.Statement: 已提交的帳目
//	error: 驗證錯誤、ErrAccountNotFound 或儲存錯誤
func (c *CoreUseCase) Deposit(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error) {
	return c.post(ctx, "deposit", &domain.Draft{
		AccountID:   accountID,
		Type:        domain.StatementTypeDeposit,
		Amount:      amount,
		Description: description,
	})
}

// Withdraw 提款，金額大於餘額時回傳 ErrInsufficientBalance 且不做任何寫入
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	amount: 金額 (最小貨幣單位，須為正數)
//	description: 說明 (不可為空)
//
// 回傳:
//
//	*domain.Statement: 已提交的帳目
//	error: 驗證錯誤、ErrInsufficientBalance、ErrAccountNotFound 或儲存錯誤
func (c *CoreUseCase) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*domain.Statement, error) {
	return c.post(ctx, "withdraw", &domain.Draft{
		AccountID:   accountID,
		Type:        domain.StatementTypeWithdraw,
		Amount:      amount,
		Description: description,
	})
}

func (c *CoreUseCase) post(ctx context.Context, op string, draft *domain.Draft) (stmt *domain.Statement, err error) {
	start := c.now()
	defer func() { c.observe(op, start, err) }()

	// 1. 驗證 (任何寫入之前)
	if err = draft.Validate(); err != nil {
		return nil, err
	}

	// 2. 單一寫入口，同一帳戶序列化
	stmt, acc, err := c.ledger.Post(ctx, draft)
	if err != nil {
		c.logFailure(op+" failed", draft.AccountID, err)
		return nil, err
	}

	c.logger.Info(op+" committed",
		zap.String("account_id", acc.ID.String()),
		zap.String("statement_id", stmt.ID),
		zap.Int64("amount", stmt.Amount),
		zap.Int64("balance", acc.Balance),
	)

	// 3. 提交後的副作用，失敗只記錄
	c.afterCommit(ctx, stmt, acc)
	return stmt, nil
}

func (c *CoreUseCase) afterCommit(ctx context.Context, stmt *domain.Statement, acc *domain.Account) {
	if c.cache != nil {
		if err := c.cache.Set(ctx, stmt); err != nil {
			c.logger.Warn("statement cache set failed", zap.String("statement_id", stmt.ID), zap.Error(err))
		}
	}
	event := &StatementEvent{
		EventType:    EventStatementCommitted,
		Statement:    stmt,
		BalanceAfter: acc.Balance,
		Timestamp:    c.now(),
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("publish statement event failed", zap.String("statement_id", stmt.ID), zap.Error(err))
	}
}
