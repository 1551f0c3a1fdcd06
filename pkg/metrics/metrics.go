package metrics

import "time"

// Collector 收集帳務服務的指標
// 可以接到不同後端 (Prometheus 等)
type Collector interface {
	// RecordOperation 記錄帳務操作 (deposit/withdraw/balance/lookup) 與結果
	RecordOperation(op string, outcome string, duration time.Duration)
	// RecordDivergence 快取餘額與帳目總和不一致
	RecordDivergence()
	// RecordCacheLookup 帳目快取命中與否
	RecordCacheLookup(hit bool)
	// RecordCircuitState 斷路器狀態
	RecordCircuitState(name string, state CircuitState)
	// RecordHTTPRequest HTTP 請求
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// CircuitState 斷路器狀態
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// 操作結果標籤
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// NoOpCollector 不做任何事，未設定指標時使用
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op string, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordDivergence() {}

func (NoOpCollector) RecordCacheLookup(hit bool) {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

func (NoOpCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {}
