package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
	"github.com/JoeShih716/go-stmt-ledger/pkg/resilience"
)

const keyPrefix = "stmt"

// StatementCache 以 Redis 快取單筆帳目
// 帳目寫入後不會再變動，所以只需要 TTL 不需要失效
// Redis 故障時由斷路器快速放棄，查詢改走帳本
type StatementCache struct {
	client  Client
	breaker *resilience.Breaker
	ttl     time.Duration
	logger  *logging.Logger
}

// CacheConfig 帳目快取設定
type CacheConfig struct {
	TTL     time.Duration     `yaml:"ttl"`
	Breaker resilience.Config `yaml:"breaker"`
}

func NewStatementCache(client Client, cfg CacheConfig, collector metrics.Collector) *StatementCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	isSuccessful := func(err error) bool {
		// miss 不是故障
		return err == nil || errors.Is(err, redis.Nil)
	}
	return &StatementCache{
		client:  client,
		breaker: resilience.NewBreaker("statement-cache", cfg.Breaker, collector, isSuccessful),
		ttl:     cfg.TTL,
		logger:  logging.L().Named("statement-cache"),
	}
}

// Key stmt:{account_id}:{statement_id}
func Key(key usecase.StatementKey) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, key.AccountID, key.StatementID)
}

// Get 任何錯誤 (miss、逾時、斷路器開啟、資料損毀) 都視為 miss
func (c *StatementCache) Get(ctx context.Context, key usecase.StatementKey) (*domain.Statement, bool) {
	var raw []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = c.client.Get(ctx, Key(key)).Bytes()
		return err
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache get failed", zap.String("key", Key(key)), zap.Error(err))
		}
		return nil, false
	}

	var stmt domain.Statement
	if err := json.Unmarshal(raw, &stmt); err != nil {
		c.logger.Warn("cache entry corrupted", zap.String("key", Key(key)), zap.Error(err))
		return nil, false
	}
	return &stmt, true
}

// Set 寫入快取
func (c *StatementCache) Set(ctx context.Context, stmt *domain.Statement) error {
	raw, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("marshal statement: %w", err)
	}
	key := Key(usecase.StatementKey{AccountID: stmt.AccountID, StatementID: stmt.ID})
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, raw, c.ttl).Err()
	})
}

var _ usecase.StatementCache = (*StatementCache)(nil)
