package domain

import "errors"

var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrAmountTooLarge 金額超出可記帳範圍 (int64 溢位)
	ErrAmountTooLarge = errors.New("amount too large")

	// ErrDescriptionRequired 說明不可為空
	ErrDescriptionRequired = errors.New("description is required")

	// ErrInvalidStatementType 未知的帳目類型
	ErrInvalidStatementType = errors.New("invalid statement type")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrStatementNotFound 找不到帳目 (不存在或不屬於該帳戶)
	ErrStatementNotFound = errors.New("statement not found")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerDiverged 快取餘額與帳目總和不一致
	ErrLedgerDiverged = errors.New("balance diverged from ledger")
)

// IsValidation 判斷是否為輸入驗證錯誤 (在任何寫入前就被拒絕)
func IsValidation(err error) bool {
	return errors.Is(err, ErrAmountMustBePositive) ||
		errors.Is(err, ErrAmountTooLarge) ||
		errors.Is(err, ErrDescriptionRequired) ||
		errors.Is(err, ErrInvalidStatementType)
}
