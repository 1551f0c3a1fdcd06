package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 用到的 go-redis 指令，redis.UniversalClient 皆已實作
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Config Redis 連線設定
type Config struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// NewUniversalClient 單一位址時為一般 client，多個位址時為 cluster client
func NewUniversalClient(cfg Config) redis.UniversalClient {
	if len(cfg.Addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	}
	addr := "127.0.0.1:6379"
	if len(cfg.Addrs) == 1 {
		addr = cfg.Addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
