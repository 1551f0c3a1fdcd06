package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-stmt-ledger/pkg/jwtutil"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/mysql"
	"github.com/JoeShih716/go-stmt-ledger/pkg/postgres"
	"github.com/JoeShih716/go-stmt-ledger/pkg/resilience"
)

// DefaultPath 預設設定檔路徑
const DefaultPath = "config/config.yaml"

// 帳本後端
const (
	BackendMemory   = "memory"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// 事件輸出
const (
	SinkNone  = "none"
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

type Config struct {
	Backend  string          `yaml:"backend"`
	HTTP     HTTPConfig      `yaml:"http"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	WAL      WALConfig       `yaml:"wal"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    RedisConfig     `yaml:"redis"`
	Events   EventsConfig    `yaml:"events"`
	JWT      jwtutil.Config  `yaml:"jwt"`
	Log      logging.Config  `yaml:"log"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// WALConfig memory 後端的 WAL 檔案，帳本與使用者各一個
type WALConfig struct {
	Path      string `yaml:"path"`
	UsersPath string `yaml:"users_path"`
}

// RedisConfig 帳目快取 (Addrs 為空表示不啟用)
type RedisConfig struct {
	Addrs    []string          `yaml:"addrs"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	Breaker  resilience.Config `yaml:"breaker"`
}

// Enabled 是否設定了 Redis
func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0
}

// EventsConfig 帳目事件輸出
type EventsConfig struct {
	Sink         string            `yaml:"sink"`
	RedisChannel string            `yaml:"redis_channel"`
	KafkaBrokers []string          `yaml:"kafka_brokers"`
	KafkaTopic   string            `yaml:"kafka_topic"`
	Breaker      resilience.Config `yaml:"breaker"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default 預設值
func Default() Config {
	return Config{
		Backend: BackendMemory,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		GRPC:     GRPCConfig{Addr: ":50051"},
		WAL:      WALConfig{Path: "data/wal.log", UsersPath: "data/users.log"},
		MySQL:    mysql.DefaultConfig(),
		Postgres: postgres.DefaultConfig(),
		Redis: RedisConfig{
			CacheTTL: time.Hour,
			Breaker:  resilience.DefaultConfig(),
		},
		Events: EventsConfig{
			Sink:         SinkNone,
			RedisChannel: "ledger.statements",
			KafkaTopic:   "ledger.statements",
			Breaker:      resilience.DefaultConfig(),
		},
		JWT: jwtutil.Config{
			Issuer: "stmt-ledger",
			TTL:    24 * time.Hour,
		},
		Log:     logging.DefaultConfig(),
		Metrics: MetricsConfig{Namespace: "stmt_ledger"},
	}
}

// Load 載入順序：預設值 -> YAML -> .env 與環境變數
// path 不存在時只使用預設值與環境變數
func Load(path string) (*Config, error) {
	// .env 不存在不是錯誤
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	set("LEDGER_BACKEND", &c.Backend)
	set("HTTP_ADDR", &c.HTTP.Addr)
	set("GRPC_ADDR", &c.GRPC.Addr)
	set("WAL_PATH", &c.WAL.Path)
	set("WAL_USERS_PATH", &c.WAL.UsersPath)
	set("JWT_SECRET", &c.JWT.Secret)
	set("DATABASE_URL", &c.Postgres.URL)
	set("MYSQL_HOST", &c.MySQL.Host)
	set("MYSQL_USER", &c.MySQL.User)
	set("MYSQL_PASSWORD", &c.MySQL.Password)
	set("MYSQL_DATABASE", &c.MySQL.DBName)
	list("REDIS_ADDR", &c.Redis.Addrs)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("EVENTS_SINK", &c.Events.Sink)
	list("KAFKA_BROKERS", &c.Events.KafkaBrokers)
	set("KAFKA_TOPIC", &c.Events.KafkaTopic)
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate 檢查設定
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory:
		if c.WAL.Path == "" || c.WAL.UsersPath == "" {
			errs = append(errs, errors.New("wal.path and wal.users_path are required for the memory backend"))
		} else if c.WAL.Path == c.WAL.UsersPath {
			errs = append(errs, errors.New("wal.path and wal.users_path must differ"))
		}
	case BackendMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			errs = append(errs, errors.New("mysql.host and mysql.db_name are required for the mysql backend"))
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.GRPC.Addr == "" {
		errs = append(errs, errors.New("grpc.addr is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required"))
	}

	switch c.Events.Sink {
	case "", SinkNone:
	case SinkRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("redis.addrs is required for the redis event sink"))
		}
	case SinkKafka:
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			errs = append(errs, errors.New("events.kafka_brokers and events.kafka_topic are required for the kafka event sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event sink %q", c.Events.Sink))
	}
	return errors.Join(errs...)
}
