package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// Client 封裝 pgxpool
type Client struct {
	pool *pgxpool.Pool
}

// NewClient 建立連線池，連不上時以指數退避重試
//
// 參數:
//
//	ctx: 取消時停止重試
//	cfg: 連線設定
//
// 回傳值:
//
//	*Client: 已通過 Ping 的連線池
//	error: 設定錯誤或重試用盡
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	delay := cfg.RetryInterval
	if delay <= 0 {
		delay = 2 * time.Second
	}
	log := logging.L().Named("postgres")

	for i := 1; i <= maxRetries; i++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				log.Info("connected", zap.String("host", poolCfg.ConnConfig.Host))
				return &Client{pool: pool}, nil
			}
			pool.Close()
		}

		if i < maxRetries {
			log.Warn("connect to postgres failed, retrying",
				zap.Int("attempt", i),
				zap.Int("max_retries", maxRetries),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, err)
}

// NewClientFromPool 包裝既有連線池 (測試用)
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Pool 回傳底層連線池
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping 健康檢查
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close 關閉連線池
func (c *Client) Close() {
	c.pool.Close()
}
