package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	identitymemory "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/adapter/out/memory"
	identitymysql "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/adapter/out/mysql"
	identitypostgres "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/adapter/out/postgres"
	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/usecase"
	kafkaadapter "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/kafka"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/memory"
	mysqladapter "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/mysql"
	postgresadapter "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/postgres"
	redisadapter "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/redis"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/internal/config"
	"github.com/JoeShih716/go-stmt-ledger/pkg/jwtutil"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	promcollector "github.com/JoeShih716/go-stmt-ledger/pkg/metrics/prometheus"
	"github.com/JoeShih716/go-stmt-ledger/pkg/mysql"
	"github.com/JoeShih716/go-stmt-ledger/pkg/postgres"
	"github.com/JoeShih716/go-stmt-ledger/pkg/wal"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

// storage 依後端建立的帳本與使用者儲存
type storage struct {
	ledger     usecase.Ledger
	users      identity.UserRepository
	migrations []migrator
	ping       func(ctx context.Context) error
	closers    []func() error
}

// app 組裝完成的服務
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	registry  *prometheus.Registry
	collector *promcollector.Collector
	store     *storage
	core      *usecase.CoreUseCase
	identity  *identity.Service
	closers   []func() error
}

func openStorage(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		ledgerWAL, err := openWAL(cfg.WAL.Path)
		if err != nil {
			return nil, err
		}
		ledger, err := memory.NewMutexLedger(ledgerWAL)
		if err != nil {
			ledgerWAL.Close()
			return nil, fmt.Errorf("recover ledger: %w", err)
		}
		usersWAL, err := openWAL(cfg.WAL.UsersPath)
		if err != nil {
			ledgerWAL.Close()
			return nil, err
		}
		users, err := identitymemory.NewDurableUserRepository(usersWAL)
		if err != nil {
			ledgerWAL.Close()
			usersWAL.Close()
			return nil, err
		}
		logger.Info("memory ledger ready", zap.String("wal", cfg.WAL.Path), zap.String("users_wal", cfg.WAL.UsersPath))
		return &storage{
			ledger:  ledger,
			users:   users,
			ping:    func(context.Context) error { return nil },
			closers: []func() error{ledgerWAL.Close, usersWAL.Close},
		}, nil

	case config.BackendMySQL:
		client, err := mysql.NewClient(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		ledger := mysqladapter.NewMySQLLedger(client)
		users := identitymysql.NewUserRepository(client)
		logger.Info("connected to mysql", zap.String("host", cfg.MySQL.Host), zap.String("db", cfg.MySQL.DBName))
		return &storage{
			ledger:     ledger,
			users:      users,
			migrations: []migrator{ledger, users},
			ping:       client.Ping,
			closers:    []func() error{client.Close},
		}, nil

	case config.BackendPostgres:
		client, err := postgres.NewClient(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		ledger := postgresadapter.NewPostgresLedger(client)
		users := identitypostgres.NewUserRepository(client)
		logger.Info("connected to postgres")
		return &storage{
			ledger:     ledger,
			users:      users,
			migrations: []migrator{ledger, users},
			ping:       client.Ping,
			closers:    []func() error{func() error { client.Close(); return nil }},
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openWAL(path string) (*wal.WAL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create wal dir: %w", err)
		}
	}
	return wal.NewWAL(path)
}

func (s *storage) migrate(ctx context.Context) error {
	for _, m := range s.migrations {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// buildApp 依設定組裝帳本、快取、事件輸出與身分服務
//
// 參數:
//
//	withSinks: 是否連線 Redis 與 Kafka (離線指令不需要)
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, withSinks bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = promcollector.NewCollector(cfg.Metrics.Namespace)
	if err := a.collector.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.closers...)

	opts := []usecase.Option{
		usecase.WithMetrics(a.collector),
		usecase.WithLogger(logger),
	}
	if withSinks {
		opts = append(opts, a.sinkOptions()...)
	}
	a.core = usecase.NewCoreUseCase(store.ledger, opts...)

	tokens, err := jwtutil.NewManager(cfg.JWT)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.identity = identity.NewService(store.users, a.core, tokens, identity.WithLogger(logger))
	return a, nil
}

func (a *app) sinkOptions() []usecase.Option {
	var opts []usecase.Option
	cfg := a.cfg

	var rc redisadapter.Client
	if cfg.Redis.Enabled() {
		client := redisadapter.NewUniversalClient(redisadapter.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		rc = client
		opts = append(opts, usecase.WithStatementCache(redisadapter.NewStatementCache(rc, redisadapter.CacheConfig{
			TTL:     cfg.Redis.CacheTTL,
			Breaker: cfg.Redis.Breaker,
		}, a.collector)))
		a.logger.Info("statement cache enabled", zap.Strings("addrs", cfg.Redis.Addrs))
	}

	switch cfg.Events.Sink {
	case config.SinkRedis:
		opts = append(opts, usecase.WithPublisher(redisadapter.NewPublisher(rc, cfg.Events.RedisChannel, cfg.Events.Breaker, a.collector)))
		a.logger.Info("publishing statements to redis", zap.String("channel", cfg.Events.RedisChannel))
	case config.SinkKafka:
		writer := kafkaadapter.NewWriter(kafkaadapter.Config{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		}, a.logger.Named("kafka"))
		publisher := kafkaadapter.NewPublisher(writer, cfg.Events.Breaker, a.collector)
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, usecase.WithPublisher(publisher))
		a.logger.Info("publishing statements to kafka", zap.String("topic", cfg.Events.KafkaTopic))
	}
	return opts
}

// Close 反向關閉所有資源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource failed", zap.Error(err))
		}
	}
	a.closers = nil
}
