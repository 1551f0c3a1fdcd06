package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatementType 帳目類型
type StatementType string

const (
	// 存款
	StatementTypeDeposit StatementType = "deposit"
	// 提款
	StatementTypeWithdraw StatementType = "withdraw"
)

// Valid 是否為已知類型
func (t StatementType) Valid() bool {
	return t == StatementTypeDeposit || t == StatementTypeWithdraw
}

// Statement 一筆已提交的金流紀錄，建立後不可變更
type Statement struct {
	ID          string        `json:"id"`
	AccountID   uuid.UUID     `json:"account_id"`
	UserID      uuid.UUID     `json:"user_id"`
	Type        StatementType `json:"type"`
	Amount      int64         `json:"amount"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SignedAmount 存款為正，提款為負
func (s *Statement) SignedAmount() int64 {
	if s.Type == StatementTypeWithdraw {
		return -s.Amount
	}
	return s.Amount
}

// Draft 尚未提交的帳目請求
type Draft struct {
	AccountID   uuid.UUID
	Type        StatementType
	Amount      int64
	Description string
}

// Validate 在任何寫入之前檢查輸入
func (d *Draft) Validate() error {
	if !d.Type.Valid() {
		return ErrInvalidStatementType
	}
	if d.Amount <= 0 {
		return ErrAmountMustBePositive
	}
	if strings.TrimSpace(d.Description) == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// Commit 以帳戶當下狀態產生帳目
// 必須在該帳戶的臨界區內呼叫，CreatedAt 取 max(now, 上一筆提交時間) 以確保單調不遞減
func (d *Draft) Commit(acc *Account, now time.Time) *Statement {
	createdAt := now
	if acc.UpdatedAt.After(createdAt) {
		createdAt = acc.UpdatedAt
	}
	return &Statement{
		ID:          NewStatementID(),
		AccountID:   acc.ID,
		UserID:      acc.OwnerID,
		Type:        d.Type,
		Amount:      d.Amount,
		Description: strings.TrimSpace(d.Description),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// Snapshot 同一時間點讀出的帳戶與其帳目
type Snapshot struct {
	Account    Account
	Statements []*Statement
}

// LedgerSum 帳目的帶號總和
func (s *Snapshot) LedgerSum() int64 {
	var sum int64
	for _, stmt := range s.Statements {
		sum += stmt.SignedAmount()
	}
	return sum
}

// Consistent 快取餘額是否等於帳目總和
func (s *Snapshot) Consistent() bool {
	return s.Account.Balance == s.LedgerSum()
}
