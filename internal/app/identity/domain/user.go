package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinPasswordLength 密碼最短長度
const MinPasswordLength = 6

// User 已註冊的使用者
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registration 註冊輸入
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize 去除空白並將 email 轉小寫
func (r *Registration) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

// Validate 檢查註冊輸入
func (r *Registration) Validate() error {
	if r.Name == "" {
		return ErrNameRequired
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email {
		return ErrInvalidEmail
	}
	if len(r.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// NormalizeEmail email 比對一律以小寫進行
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session 登入後回傳的 token 與使用者資料
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Principal 已驗證的呼叫者
type Principal struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
}
