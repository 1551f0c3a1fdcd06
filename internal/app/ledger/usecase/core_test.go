package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/memory"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
)

// recordingPublisher 記錄收到的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*usecase.StatementEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *usecase.StatementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// mapCache 以 map 實作的帳目快取
type mapCache struct {
	mu     sync.Mutex
	items  map[usecase.StatementKey]*domain.Statement
	setErr error
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[usecase.StatementKey]*domain.Statement)}
}

func (c *mapCache) Get(ctx context.Context, key usecase.StatementKey) (*domain.Statement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[key]
	return s, ok
}

func (c *mapCache) Set(ctx context.Context, stmt *domain.Statement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.items[usecase.StatementKey{AccountID: stmt.AccountID, StatementID: stmt.ID}] = stmt
	return nil
}

// countingMetrics 只記錄關心的指標
type countingMetrics struct {
	metrics.NoOpCollector
	mu          sync.Mutex
	outcomes    map[string]int
	divergences int
	hits        int
	misses      int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: make(map[string]int)}
}

func (m *countingMetrics) RecordOperation(op string, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[op+":"+outcome]++
}

func (m *countingMetrics) RecordDivergence() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.divergences++
}

func (m *countingMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

type fixture struct {
	core      *usecase.CoreUseCase
	ledger    *memory.MutexLedger
	publisher *recordingPublisher
	cache     *mapCache
	metrics   *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, err := memory.NewMutexLedger(nil)
	require.NoError(t, err)
	f := &fixture{
		ledger:    ledger,
		publisher: &recordingPublisher{},
		cache:     newMapCache(),
		metrics:   newCountingMetrics(),
	}
	f.core = usecase.NewCoreUseCase(ledger,
		usecase.WithPublisher(f.publisher),
		usecase.WithStatementCache(f.cache),
		usecase.WithMetrics(f.metrics),
		usecase.WithLogger(logging.NewNoOpLogger()),
	)
	return f
}

func (f *fixture) openAccount(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := f.core.OpenAccount(context.Background(), uuid.New())
	require.NoError(t, err)
	return id
}

func TestCoreUseCase_OpenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	id, err := f.core.OpenAccount(ctx, owner)
	require.NoError(t, err)

	got, err := f.core.AccountIDForOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.core.OpenAccount(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	_, err = f.core.AccountIDForOwner(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCoreUseCase_DepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.openAccount(t)

	dep, err := f.core.Deposit(ctx, accountID, 500, "  salary  ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementTypeDeposit, dep.Type)
	assert.Equal(t, "salary", dep.Description)

	_, err = f.core.Deposit(ctx, accountID, 500, "bonus")
	require.NoError(t, err)
	wd, err := f.core.Withdraw(ctx, accountID, 100, "rent")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementTypeWithdraw, wd.Type)

	balance, err := f.core.CurrentBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)

	_, err = f.core.Withdraw(ctx, accountID, 901, "too much")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	history, err := f.core.StatementHistory(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	require.Len(t, f.publisher.events, 3)
	last := f.publisher.events[2]
	assert.Equal(t, usecase.EventStatementCommitted, last.EventType)
	assert.Equal(t, wd.ID, last.Statement.ID)
	assert.Equal(t, int64(900), last.BalanceAfter)

	assert.Equal(t, 2, f.metrics.outcomes["deposit:success"])
	assert.Equal(t, 1, f.metrics.outcomes["withdraw:success"])
	assert.Equal(t, 1, f.metrics.outcomes["withdraw:rejected"])
}

func TestCoreUseCase_ValidationHappensBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.openAccount(t)

	tests := []struct {
		name   string
		amount int64
		desc   string
		want   error
	}{
		{"zero amount", 0, "x", domain.ErrAmountMustBePositive},
		{"negative amount", -5, "x", domain.ErrAmountMustBePositive},
		{"blank description", 10, "   ", domain.ErrDescriptionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.core.Deposit(ctx, accountID, tt.amount, tt.desc)
			assert.ErrorIs(t, err, tt.want)
			_, err = f.core.Withdraw(ctx, accountID, tt.amount, tt.desc)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	history, err := f.core.StatementHistory(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.publisher.events)
}

func TestCoreUseCase_SideEffectFailuresDoNotFailCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.openAccount(t)

	f.publisher.err = errors.New("broker down")
	f.cache.setErr = errors.New("redis down")

	stmt, err := f.core.Deposit(ctx, accountID, 100, "still committed")
	require.NoError(t, err)

	got, err := f.core.Lookup(ctx, accountID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, stmt.ID, got.ID)
}

func TestCoreUseCase_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.core.Deposit(ctx, uuid.New(), 100, "x")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = f.core.Balance(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, 1, f.metrics.outcomes["deposit:error"])
}
