// Package ledgertest 提供所有 usecase.Ledger 實作共用的行為測試
package ledgertest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
)

// Factory 每個子測試都會取得一個全新的 Ledger
type Factory func(t *testing.T) usecase.Ledger

// Run 執行共用行為測試
func Run(t *testing.T, newLedger Factory) {
	t.Run("DepositWithdrawScenario", func(t *testing.T) { testScenario(t, newLedger(t)) })
	t.Run("DuplicateOwner", func(t *testing.T) { testDuplicateOwner(t, newLedger(t)) })
	t.Run("UnknownAccount", func(t *testing.T) { testUnknownAccount(t, newLedger(t)) })
	t.Run("CrossAccountIsolation", func(t *testing.T) { testIsolation(t, newLedger(t)) })
	t.Run("ConcurrentWithdrawals", func(t *testing.T) { testConcurrentWithdrawals(t, newLedger(t)) })
	t.Run("RepeatedReadsAreIdentical", func(t *testing.T) { testRepeatedReads(t, newLedger(t)) })
	t.Run("LongDescription", func(t *testing.T) { testLongDescription(t, newLedger(t)) })
}

func open(t *testing.T, l usecase.Ledger) *domain.Account {
	t.Helper()
	acc, err := l.CreateAccount(context.Background(), uuid.New())
	require.NoError(t, err)
	return acc
}

func post(l usecase.Ledger, accountID uuid.UUID, typ domain.StatementType, amount int64, desc string) (*domain.Statement, *domain.Account, error) {
	return l.Post(context.Background(), &domain.Draft{AccountID: accountID, Type: typ, Amount: amount, Description: desc})
}

func requireConsistent(t *testing.T, l usecase.Ledger, accountID uuid.UUID) *domain.Snapshot {
	t.Helper()
	snap, err := l.Snapshot(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, snap.Consistent(), "balance %d != ledger sum %d", snap.Account.Balance, snap.LedgerSum())
	return snap
}

func testScenario(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	acc := open(t, l)

	dep, after, err := post(l, acc.ID, domain.StatementTypeDeposit, 500, "salary")
	require.NoError(t, err)
	assert.Equal(t, int64(500), after.Balance)
	assert.Equal(t, acc.OwnerID, dep.UserID)

	_, _, err = post(l, acc.ID, domain.StatementTypeDeposit, 500, "bonus")
	require.NoError(t, err)
	_, after, err = post(l, acc.ID, domain.StatementTypeWithdraw, 100, "rent")
	require.NoError(t, err)
	assert.Equal(t, int64(900), after.Balance)

	_, after, err = post(l, acc.ID, domain.StatementTypeWithdraw, 900, "everything")
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Balance)

	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 1, "overdraft")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	snap := requireConsistent(t, l, acc.ID)
	require.Len(t, snap.Statements, 4)
	for i := 1; i < len(snap.Statements); i++ {
		prev, cur := snap.Statements[i-1], snap.Statements[i]
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
	}

	got, err := l.GetStatement(ctx, acc.ID, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, "salary", got.Description)
	assert.Equal(t, int64(500), got.Amount)

	list, err := l.ListStatements(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func testDuplicateOwner(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	owner := uuid.New()
	acc, err := l.CreateAccount(ctx, owner)
	require.NoError(t, err)

	_, err = l.CreateAccount(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	got, err := l.GetAccountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
}

func testUnknownAccount(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	missing := uuid.New()

	_, _, err := post(l, missing, domain.StatementTypeDeposit, 10, "x")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = l.GetAccount(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = l.Snapshot(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func testIsolation(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	alice := open(t, l)
	bob := open(t, l)

	stmt, _, err := post(l, alice.ID, domain.StatementTypeDeposit, 100, "alice only")
	require.NoError(t, err)

	_, err = l.GetStatement(ctx, bob.ID, stmt.ID)
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
	_, err = l.GetStatement(ctx, alice.ID, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)

	snap := requireConsistent(t, l, bob.ID)
	assert.Empty(t, snap.Statements)
	assert.Zero(t, snap.Account.Balance)
}

func testConcurrentWithdrawals(t *testing.T, l usecase.Ledger) {
	acc := open(t, l)
	_, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 1000, "seed")
	require.NoError(t, err)

	const workers = 50
	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int64
		insufficient atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := post(l, acc.ID, domain.StatementTypeWithdraw, 30, "race")
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, domain.ErrInsufficientBalance):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(33), succeeded.Load())
	assert.Equal(t, int64(workers-33), insufficient.Load())

	snap := requireConsistent(t, l, acc.ID)
	assert.Equal(t, int64(10), snap.Account.Balance)
	assert.Len(t, snap.Statements, 34)
}

func testRepeatedReads(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	acc := open(t, l)
	dep, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 300, "salary")
	require.NoError(t, err)
	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 120, "groceries")
	require.NoError(t, err)

	first, err := l.Snapshot(ctx, acc.ID)
	require.NoError(t, err)
	second, err := l.Snapshot(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	listA, err := l.ListStatements(ctx, acc.ID)
	require.NoError(t, err)
	listB, err := l.ListStatements(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, listA, listB)
	assert.Equal(t, first.Statements, listA)

	stmtA, err := l.GetStatement(ctx, acc.ID, dep.ID)
	require.NoError(t, err)
	stmtB, err := l.GetStatement(ctx, acc.ID, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, stmtA, stmtB)

	accA, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	accB, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, accA, accB)
	assert.Equal(t, int64(180), accA.Balance)
}

func testLongDescription(t *testing.T, l usecase.Ledger) {
	ctx := context.Background()
	acc := open(t, l)
	desc := strings.Repeat("說明", 600)

	stmt, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 1, desc)
	require.NoError(t, err)

	got, err := l.GetStatement(ctx, acc.ID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)
}
