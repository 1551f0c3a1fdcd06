package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
)

// StatementKey 帳目快取的鍵，包含帳戶 ID 讓跨帳戶查詢無法命中
type StatementKey struct {
	AccountID   uuid.UUID
	StatementID string
}

// Lookup 查詢單筆帳目，只限該帳戶
// 不存在或屬於其他帳戶都回傳 ErrStatementNotFound
func (c *CoreUseCase) Lookup(ctx context.Context, accountID uuid.UUID, statementID string) (stmt *domain.Statement, err error) {
	start := c.now()
	defer func() { c.observe("lookup", start, err) }()

	statementID = strings.TrimSpace(statementID)
	if statementID == "" {
		return nil, domain.ErrStatementNotFound
	}

	key := StatementKey{AccountID: accountID, StatementID: statementID}
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok && cached.AccountID == accountID {
			c.metrics.RecordCacheLookup(true)
			return cached, nil
		}
		c.metrics.RecordCacheLookup(false)
	}

	stmt, err = c.ledger.GetStatement(ctx, accountID, statementID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, stmt); err != nil {
			c.logger.Warn("statement cache fill failed", zap.String("statement_id", stmt.ID), zap.Error(err))
		}
	}
	return stmt, nil
}
