package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/wal"
)

const (
	recordKindAccount   = "account"
	recordKindStatement = "statement"
)

// walRecord WAL 中的一筆紀錄
type walRecord struct {
	Kind      string            `json:"kind"`
	Account   *domain.Account   `json:"account,omitempty"`
	Statement *domain.Statement `json:"statement,omitempty"`
}

// accountEntry 單一帳戶的狀態，由自己的鎖保護
type accountEntry struct {
	mu         sync.RWMutex
	account    domain.Account
	statements []*domain.Statement
	byID       map[string]*domain.Statement
}

// MutexLedger 是一個使用 Mutex 實現的帳本
//
// 結構:
//
//	mu: 只保護 accounts/owners 兩個 Map 的查詢與新增
//	createMu: 序列化開戶
//	accounts: 帳戶 ID 對應帳戶狀態，每個帳戶有自己的鎖，不同帳戶的寫入互不阻塞
//	owners: 使用者 ID 對應帳戶 ID
//	wal: Write-Ahead Log 實例 (nil 代表純記憶體)
type MutexLedger struct {
	mu       sync.RWMutex
	createMu sync.Mutex
	accounts map[uuid.UUID]*accountEntry
	owners   map[uuid.UUID]uuid.UUID
	wal      *wal.WAL
	now      func() time.Time
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(w *wal.WAL) (*MutexLedger, error) {
	ledger := &MutexLedger{
		accounts: make(map[uuid.UUID]*accountEntry),
		owners:   make(map[uuid.UUID]uuid.UUID),
		wal:      w,
		now:      time.Now,
	}
	if w == nil {
		return ledger, nil
	}
	if err := ledger.recoverFromWAL(); err != nil {
		return nil, fmt.Errorf("recover from wal: %w", err)
	}
	return ledger, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexLedger 呼叫，無需 Lock (單執行緒)
func (m *MutexLedger) recoverFromWAL() error {
	return m.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		return m.applyRecoverRecord(&rec)
	})
}

// applyRecoverRecord 恢復單筆紀錄至記憶體 (不寫入 WAL)
func (m *MutexLedger) applyRecoverRecord(rec *walRecord) error {
	switch rec.Kind {
	case recordKindAccount:
		if rec.Account == nil {
			return fmt.Errorf("account record without account")
		}
		if _, ok := m.accounts[rec.Account.ID]; ok {
			return domain.ErrAccountAlreadyExists
		}
		m.insert(*rec.Account)
	case recordKindStatement:
		stmt := rec.Statement
		if stmt == nil {
			return fmt.Errorf("statement record without statement")
		}
		entry, ok := m.accounts[stmt.AccountID]
		if !ok {
			return fmt.Errorf("statement %s: %w", stmt.ID, domain.ErrAccountNotFound)
		}
		if err := entry.account.Apply(stmt); err != nil {
			return fmt.Errorf("replay statement %s: %w", stmt.ID, err)
		}
		entry.append(stmt)
	default:
		return fmt.Errorf("unknown wal record kind %q", rec.Kind)
	}
	return nil
}

func (m *MutexLedger) insert(acc domain.Account) *accountEntry {
	entry := &accountEntry{
		account: acc,
		byID:    make(map[string]*domain.Statement),
	}
	m.accounts[acc.ID] = entry
	m.owners[acc.OwnerID] = acc.ID
	return entry
}

func (e *accountEntry) append(stmt *domain.Statement) {
	e.statements = append(e.statements, stmt)
	e.byID[stmt.ID] = stmt
}

// entry 取得帳戶狀態 (只持有 Map 的讀鎖)
func (m *MutexLedger) entry(accountID uuid.UUID) (*accountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return entry, nil
}

// CreateAccount 開戶
// createMu 讓檢查、寫 WAL、插入三步對同一個 owner 不會交錯
// WAL fsync 期間不持有 mu，其他帳戶的 Post 不受影響
func (m *MutexLedger) CreateAccount(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	m.mu.RLock()
	_, exists := m.owners[ownerID]
	m.mu.RUnlock()
	if exists {
		return nil, domain.ErrAccountAlreadyExists
	}

	acc := domain.NewAccount(uuid.New(), ownerID, m.now())
	if m.wal != nil {
		if err := m.wal.Write(&walRecord{Kind: recordKindAccount, Account: acc}); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}

	m.mu.Lock()
	m.insert(*acc)
	m.mu.Unlock()
	return acc, nil
}

// GetAccount 取得帳戶
func (m *MutexLedger) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	entry, err := m.entry(accountID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	acc := entry.account
	return &acc, nil
}

// GetAccountByOwner 以使用者 ID 取得帳戶
func (m *MutexLedger) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	accountID, ok := m.owners[ownerID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return m.GetAccount(ctx, accountID)
}

// ListAccounts 載入系統所有帳戶資料
func (m *MutexLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	m.mu.RLock()
	entries := make([]*accountEntry, 0, len(m.accounts))
	for _, entry := range m.accounts {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	accounts := make([]*domain.Account, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		acc := entry.account
		entry.mu.RUnlock()
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

// Post 處理交易請求 (帳戶層級的 Mutex Lock)
//
// 參數:
//
//	ctx: 上下文
//	draft: 已驗證的帳目請求
//
// 回傳:
//
//	*domain.Statement: 已提交的帳目
//	*domain.Account: 提交後的帳戶
//	error: ErrAccountNotFound、ErrInsufficientBalance 或 ErrWALWriteFailed，失敗時狀態不變
func (m *MutexLedger) Post(ctx context.Context, draft *domain.Draft) (*domain.Statement, *domain.Account, error) {
	if err := draft.Validate(); err != nil {
		return nil, nil, err
	}
	entry, err := m.entry(draft.AccountID)
	if err != nil {
		return nil, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// 1. 在副本上檢查與套用，任何失敗都不會影響目前狀態
	acc := entry.account
	stmt := draft.Commit(&acc, m.now())
	if err := acc.Apply(stmt); err != nil {
		return nil, nil, err
	}

	// 2. 寫入 WAL (Critical Path)
	if m.wal != nil {
		if err := m.wal.Write(&walRecord{Kind: recordKindStatement, Statement: stmt}); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}

	// 3. 提交至記憶體
	entry.account = acc
	entry.append(stmt)

	out := *stmt
	return &out, &acc, nil
}

// ListStatements 帳目明細 (依提交順序即 created_at, id 的順序)
func (m *MutexLedger) ListStatements(ctx context.Context, accountID uuid.UUID) ([]*domain.Statement, error) {
	snap, err := m.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snap.Statements, nil
}

// GetStatement 查詢屬於該帳戶的帳目
func (m *MutexLedger) GetStatement(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error) {
	entry, err := m.entry(accountID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	stmt, ok := entry.byID[statementID]
	if !ok {
		return nil, domain.ErrStatementNotFound
	}
	out := *stmt
	return &out, nil
}

// Snapshot 在帳戶讀鎖下複製帳戶與帳目
func (m *MutexLedger) Snapshot(ctx context.Context, accountID uuid.UUID) (*domain.Snapshot, error) {
	entry, err := m.entry(accountID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	statements := make([]*domain.Statement, len(entry.statements))
	for i, stmt := range entry.statements {
		s := *stmt
		statements[i] = &s
	}
	return &domain.Snapshot{
		Account:    entry.account,
		Statements: statements,
	}, nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
