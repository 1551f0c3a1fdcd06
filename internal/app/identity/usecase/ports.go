package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/jwtutil"
)

// UserRepository 使用者儲存
// Create 遇到重複 email 必須回傳 domain.ErrEmailAlreadyExists
// Delete 只用於註冊失敗時撤銷剛建立的使用者
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountDirectory 帳本端提供的帳戶開立與查詢能力
type AccountDirectory interface {
	OpenAccount(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, error)
	AccountIDForOwner(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, error)
}

// TokenManager session token 簽發與驗證
type TokenManager interface {
	Issue(userID string) (string, time.Time, error)
	ParseAndValidate(token string) (*jwtutil.Claims, error)
}
