package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Account 使用者的帳戶
// Balance 是帳目總和的快取投影，只能透過 Deposit/Withdraw 變動
type Account struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"user_id"`
	Balance int64     `json:"balance"`
	// UpdatedAt 同時代表最後一筆帳目提交的時間
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAccount(id, ownerID uuid.UUID, now time.Time) *Account {
	return &Account{
		ID:        id,
		OwnerID:   ownerID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Deposit 存款
func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return ErrAmountMustBePositive
	}
	if a.Balance > math.MaxInt64-amount {
		return ErrAmountTooLarge
	}

	a.Balance = a.Balance + amount
	return nil
}

// Withdraw 提款
func (a *Account) Withdraw(amount int64) error {
	if amount <= 0 {
		return ErrAmountMustBePositive
	}

	if a.Balance < amount {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance - amount
	return nil
}

// Apply 依帳目類型套用金額，失敗時餘額不變
func (a *Account) Apply(stmt *Statement) error {
	var err error
	switch stmt.Type {
	case StatementTypeDeposit:
		err = a.Deposit(stmt.Amount)
	case StatementTypeWithdraw:
		err = a.Withdraw(stmt.Amount)
	default:
		return ErrInvalidStatementType
	}
	if err != nil {
		return err
	}
	if stmt.CreatedAt.After(a.UpdatedAt) {
		a.UpdatedAt = stmt.CreatedAt
	}
	return nil
}
