package usecase

import (
	"context"
	"time"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
)

// EventStatementCommitted 帳目提交事件名稱
const EventStatementCommitted = "statement.committed"

// StatementEvent 帳目提交後送出的事件
type StatementEvent struct {
	EventType    string            `json:"event_type"`
	Statement    *domain.Statement `json:"statement"`
	BalanceAfter int64             `json:"balance_after"`
	Timestamp    time.Time         `json:"timestamp"`
}

// EventPublisher 發佈帳目事件 (best effort，不影響已提交的交易)
type EventPublisher interface {
	Publish(ctx context.Context, event *StatementEvent) error
}

// StatementCache 帳目快取，帳目不可變所以不需要失效
type StatementCache interface {
	Get(ctx context.Context, key StatementKey) (*domain.Statement, bool)
	Set(ctx context.Context, stmt *domain.Statement) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, event *StatementEvent) error { return nil }
