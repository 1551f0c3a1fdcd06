package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
)

// CoreUseCase 是核心業務邏輯層
// 寫入 (Deposit/Withdraw) 一律經過 ledger.Post，讀取不修改任何狀態
type CoreUseCase struct {
	ledger    Ledger
	publisher EventPublisher
	cache     StatementCache
	metrics   metrics.Collector
	logger    *logging.Logger
	now       func() time.Time
}

// Option 設定 CoreUseCase
type Option func(*CoreUseCase)

// WithPublisher 設定事件發佈器
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

// WithStatementCache 設定帳目快取
func WithStatementCache(cache StatementCache) Option {
	return func(c *CoreUseCase) {
		c.cache = cache
	}
}

// WithMetrics 設定指標收集器
func WithMetrics(m metrics.Collector) Option {
	return func(c *CoreUseCase) {
		c.metrics = m
	}
}

// WithLogger 設定 Logger
func WithLogger(l *logging.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = l
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:    ledger,
		publisher: noopPublisher{},
		metrics:   metrics.NoOpCollector{},
		logger:    logging.L(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("ledger")
	return c
}

// OpenAccount 為新註冊的使用者開戶
func (c *CoreUseCase) OpenAccount(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, error) {
	acc, err := c.ledger.CreateAccount(ctx, ownerID)
	if err != nil {
		c.logFailure("open account failed", uuid.Nil, err)
		return uuid.Nil, err
	}
	c.logger.Info("account opened",
		zap.String("account_id", acc.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return acc.ID, nil
}

// observe 記錄操作結果
func (c *CoreUseCase) observe(op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrStatementNotFound):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	c.metrics.RecordOperation(op, outcome, c.now().Sub(start))
}

// AccountIDForOwner 以使用者身分取得帳戶 ID
func (c *CoreUseCase) AccountIDForOwner(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, error) {
	acc, err := c.ledger.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return uuid.Nil, err
	}
	return acc.ID, nil
}

func (c *CoreUseCase) logFailure(msg string, accountID uuid.UUID, err error) {
	if domain.IsValidation(err) || errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrStatementNotFound) {
		c.logger.Debug(msg, zap.String("account_id", accountID.String()), zap.Error(err))
		return
	}
	c.logger.Error(msg, zap.String("account_id", accountID.String()), zap.Error(err))
}
