package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/memory"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

func TestCoreUseCase_LookupOwnStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.openAccount(t)

	stmt, err := f.core.Deposit(ctx, accountID, 500, "salary")
	require.NoError(t, err)

	// 提交後已寫入快取
	got, err := f.core.Lookup(ctx, accountID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, stmt.ID, got.ID)
	assert.Equal(t, 1, f.metrics.hits)
}

func TestCoreUseCase_LookupFillsCacheOnMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.openAccount(t)
	stmt, err := f.core.Deposit(ctx, accountID, 500, "salary")
	require.NoError(t, err)

	key := usecase.StatementKey{AccountID: accountID, StatementID: stmt.ID}
	delete(f.cache.items, key)

	_, err = f.core.Lookup(ctx, accountID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.misses)
	assert.Contains(t, f.cache.items, key)

	_, err = f.core.Lookup(ctx, accountID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.hits)
}

func TestCoreUseCase_LookupOtherAccountIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.openAccount(t)
	bob := f.openAccount(t)

	stmt, err := f.core.Deposit(ctx, alice, 500, "alice")
	require.NoError(t, err)

	_, err = f.core.Lookup(ctx, bob, stmt.ID)
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)

	// 快取裡若被放入錯誤帳戶的資料也不能回傳
	f.cache.items[usecase.StatementKey{AccountID: bob, StatementID: stmt.ID}] = stmt
	_, err = f.core.Lookup(ctx, bob, stmt.ID)
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
}

func TestCoreUseCase_LookupBlankID(t *testing.T) {
	f := newFixture(t)
	_, err := f.core.Lookup(context.Background(), f.openAccount(t), "  ")
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
	assert.Equal(t, 1, f.metrics.outcomes["lookup:rejected"])
}

func TestCoreUseCase_LookupCacheFillFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	ledger, err := memory.NewMutexLedger(nil)
	require.NoError(t, err)
	cache := newMapCache()
	core, logs := observer.New(zapcore.WarnLevel)
	uc := usecase.NewCoreUseCase(ledger,
		usecase.WithStatementCache(cache),
		usecase.WithLogger(&logging.Logger{Logger: zap.New(core)}),
	)

	accountID, err := uc.OpenAccount(ctx, uuid.New())
	require.NoError(t, err)
	stmt, err := uc.Deposit(ctx, accountID, 500, "salary")
	require.NoError(t, err)
	delete(cache.items, usecase.StatementKey{AccountID: accountID, StatementID: stmt.ID})
	cache.setErr = errors.New("redis down")

	got, err := uc.Lookup(ctx, accountID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, stmt.ID, got.ID)

	entries := logs.FilterMessage("statement cache fill failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, stmt.ID, entries[0].ContextMap()["statement_id"])
}
