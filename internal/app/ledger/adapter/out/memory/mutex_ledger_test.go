package memory

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/ledgertest"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/wal"
)

func newLedger(t *testing.T) *MutexLedger {
	t.Helper()
	l, err := NewMutexLedger(nil)
	require.NoError(t, err)
	return l
}

func openAccount(t *testing.T, l *MutexLedger) *domain.Account {
	t.Helper()
	acc, err := l.CreateAccount(context.Background(), uuid.New())
	require.NoError(t, err)
	return acc
}

func post(l *MutexLedger, accountID uuid.UUID, typ domain.StatementType, amount int64) (*domain.Statement, *domain.Account, error) {
	return l.Post(context.Background(), &domain.Draft{
		AccountID:   accountID,
		Type:        typ,
		Amount:      amount,
		Description: string(typ),
	})
}

func assertConsistent(t *testing.T, l *MutexLedger, accountID uuid.UUID) *domain.Snapshot {
	t.Helper()
	snap, err := l.Snapshot(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, snap.LedgerSum(), snap.Account.Balance)
	return snap
}

func TestMutexLedger_CreateAccount(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	owner := uuid.New()

	acc, err := l.CreateAccount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, acc.OwnerID)
	assert.Equal(t, int64(0), acc.Balance)

	_, err = l.CreateAccount(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	byOwner, err := l.GetAccountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byOwner.ID)

	_, err = l.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMutexLedger_DepositWithdrawScenario(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)

	_, got, err := post(l, acc.ID, domain.StatementTypeDeposit, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Balance)

	_, got, err = post(l, acc.ID, domain.StatementTypeDeposit, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.Balance)

	_, got, err = post(l, acc.ID, domain.StatementTypeWithdraw, 900)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)

	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	snap := assertConsistent(t, l, acc.ID)
	assert.Equal(t, int64(0), snap.Account.Balance)
	assert.Len(t, snap.Statements, 3)
}

func TestMutexLedger_RejectedWithdrawLeavesNoTrace(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)
	_, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 100)
	require.NoError(t, err)

	before := assertConsistent(t, l, acc.ID)
	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 101)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	after := assertConsistent(t, l, acc.ID)

	assert.Equal(t, before.Account.Balance, after.Account.Balance)
	assert.Len(t, after.Statements, len(before.Statements))
}

func TestMutexLedger_UnknownAccount(t *testing.T) {
	l := newLedger(t)
	_, _, err := post(l, uuid.New(), domain.StatementTypeDeposit, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMutexLedger_StatementsOrdered(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)

	_, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 800)
	require.NoError(t, err)
	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 100)
	require.NoError(t, err)

	stmts, err := l.ListStatements(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, domain.StatementTypeDeposit, stmts[0].Type)
	assert.Equal(t, int64(800), stmts[0].Amount)
	assert.Equal(t, domain.StatementTypeWithdraw, stmts[1].Type)
	assert.False(t, stmts[1].CreatedAt.Before(stmts[0].CreatedAt))
	assert.Less(t, stmts[0].ID, stmts[1].ID)
}

func TestMutexLedger_GetStatementScopedToAccount(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l)
	bob := openAccount(t, l)

	stmt, _, err := post(l, alice.ID, domain.StatementTypeDeposit, 50)
	require.NoError(t, err)

	got, err := l.GetStatement(ctx, alice.ID, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, stmt.ID, got.ID)
	assert.Equal(t, alice.OwnerID, got.UserID)

	_, err = l.GetStatement(ctx, bob.ID, stmt.ID)
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)

	_, err = l.GetStatement(ctx, alice.ID, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
}

func TestMutexLedger_ReturnedValuesAreCopies(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)
	stmt, got, err := post(l, acc.ID, domain.StatementTypeDeposit, 10)
	require.NoError(t, err)

	stmt.Amount = 999
	got.Balance = 999

	snap := assertConsistent(t, l, acc.ID)
	assert.Equal(t, int64(10), snap.Account.Balance)
	assert.Equal(t, int64(10), snap.Statements[0].Amount)
}

func TestMutexLedger_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)
	const (
		balance    = 1000
		amount     = 30
		goroutines = 100
	)
	_, _, err := post(l, acc.ID, domain.StatementTypeDeposit, balance)
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := post(l, acc.ID, domain.StatementTypeWithdraw, amount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrInsufficientBalance):
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, balance/amount, successes)
	assert.Equal(t, goroutines-balance/amount, insufficient)

	snap := assertConsistent(t, l, acc.ID)
	assert.Equal(t, int64(balance-successes*amount), snap.Account.Balance)
	assert.Len(t, snap.Statements, successes+1)
}

func TestMutexLedger_DifferentAccountsDoNotBlock(t *testing.T) {
	l := newLedger(t)
	alice := openAccount(t, l)
	bob := openAccount(t, l)

	// 模擬 alice 的臨界區被長時間佔用
	aliceEntry, err := l.entry(alice.ID)
	require.NoError(t, err)
	aliceEntry.mu.Lock()
	defer aliceEntry.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, _, err := post(l, bob.ID, domain.StatementTypeDeposit, 1)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("deposit on another account blocked behind a held account lock")
	}
}

func TestMutexLedger_PendingCreateDoesNotBlockPosts(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)

	// 模擬另一個開戶正在等待 WAL fsync
	l.createMu.Lock()
	defer l.createMu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, _, err := post(l, acc.ID, domain.StatementTypeDeposit, 1)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("deposit blocked behind a pending account creation")
	}
}

func TestMutexLedger_ConcurrentCreateSameOwner(t *testing.T) {
	w, err := wal.NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer w.Close()
	l, err := NewMutexLedger(w)
	require.NoError(t, err)

	owner := uuid.New()
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CreateAccount(context.Background(), owner)
			if err == nil {
				created.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	accounts, err := l.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestMutexLedger_CanceledContext(t *testing.T) {
	l := newLedger(t)
	acc := openAccount(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := l.Post(ctx, &domain.Draft{AccountID: acc.ID, Type: domain.StatementTypeDeposit, Amount: 5, Description: "x"})
	assert.ErrorIs(t, err, context.Canceled)

	snap := assertConsistent(t, l, acc.ID)
	assert.Empty(t, snap.Statements)
}

func TestMutexLedger_RecoverFromWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := wal.NewWAL(path)
	require.NoError(t, err)

	l, err := NewMutexLedger(w)
	require.NoError(t, err)
	acc := openAccount(t, l)
	_, _, err = post(l, acc.ID, domain.StatementTypeDeposit, 800)
	require.NoError(t, err)
	stmt, _, err := post(l, acc.ID, domain.StatementTypeWithdraw, 100)
	require.NoError(t, err)
	_, _, err = post(l, acc.ID, domain.StatementTypeWithdraw, 10000)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()
	recovered, err := NewMutexLedger(w2)
	require.NoError(t, err)

	snap := assertConsistent(t, recovered, acc.ID)
	assert.Equal(t, int64(700), snap.Account.Balance)
	require.Len(t, snap.Statements, 2)
	assert.Equal(t, stmt.ID, snap.Statements[1].ID)

	byOwner, err := recovered.GetAccountByOwner(context.Background(), acc.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byOwner.ID)
}

func TestMutexLedger_WALFailureRollsBack(t *testing.T) {
	w, err := wal.NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	l, err := NewMutexLedger(w)
	require.NoError(t, err)
	acc := openAccount(t, l)
	_, _, err = post(l, acc.ID, domain.StatementTypeDeposit, 100)
	require.NoError(t, err)

	// 關閉 WAL 讓後續寫入失敗
	require.NoError(t, w.Close())

	_, _, err = post(l, acc.ID, domain.StatementTypeDeposit, 50)
	assert.ErrorIs(t, err, domain.ErrWALWriteFailed)

	snap := assertConsistent(t, l, acc.ID)
	assert.Equal(t, int64(100), snap.Account.Balance)
	assert.Len(t, snap.Statements, 1)
}

func TestMutexLedger_Conformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) usecase.Ledger {
		return newLedger(t)
	})
}
