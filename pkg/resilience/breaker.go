package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
)

var (
	// ErrCircuitOpen 斷路器開啟，請求直接被拒絕
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrTimeout 操作逾時
	ErrTimeout = errors.New("operation timeout")
)

// Config 斷路器設定
type Config struct {
	// Timeout 單次操作逾時，0 表示不限制
	Timeout time.Duration `yaml:"timeout"`
	// MaxRequests half-open 狀態允許通過的請求數
	MaxRequests uint32 `yaml:"max_requests"`
	// Interval closed 狀態清除計數的週期
	Interval time.Duration `yaml:"interval"`
	// OpenTimeout open 狀態維持多久後轉為 half-open
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// ConsecutiveFailures 連續失敗幾次後開啟
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
}

// DefaultConfig 預設值
func DefaultConfig() Config {
	return Config{
		Timeout:             200 * time.Millisecond,
		MaxRequests:         1,
		Interval:            time.Minute,
		OpenTimeout:         10 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker 包裝外部依賴 (快取、訊息佇列)，失敗時快速放棄
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
}

// NewBreaker 建立斷路器
//
// 參數:
//
//	name: 斷路器名稱 (用於 log 與指標)
//	cfg: 設定
//	collector: 狀態變化時回報
//	isSuccessful: 判斷錯誤是否算成功 (例如快取 miss)，nil 表示只有 nil 錯誤算成功
func NewBreaker(name string, cfg Config, collector metrics.Collector, isSuccessful func(error) bool) *Breaker {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	logger := logging.L().Named("resilience").Named(name)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, toCircuitState(to))
		},
		IsSuccessful: isSuccessful,
	}

	return &Breaker{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Execute 在斷路器與逾時保護下執行 fn
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// State 目前狀態
func (b *Breaker) State() metrics.CircuitState {
	return toCircuitState(b.cb.State())
}

func toCircuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
