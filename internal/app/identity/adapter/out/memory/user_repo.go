package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/wal"
)

const (
	recordKindCreated = "user.created"
	recordKindDeleted = "user.deleted"
)

// walUser WAL 中的使用者，domain.User 不會序列化密碼雜湊
type walUser struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type walRecord struct {
	Kind string    `json:"kind"`
	User *walUser  `json:"user,omitempty"`
	ID   uuid.UUID `json:"id,omitempty"`
}

// UserRepository 記憶體版使用者儲存，可選擇以 WAL 持久化
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]domain.User
	byEmail map[string]uuid.UUID
	wal     *wal.WAL
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[uuid.UUID]domain.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

// NewDurableUserRepository 以 WAL 持久化的使用者儲存，建立時先重放 WAL
//
// 參數:
//
//	w: 專屬使用者的 WAL，不可與帳本共用
//
// 回傳:
//
//	*UserRepository: 已恢復的儲存
//	error: WAL 內容錯誤
func NewDurableUserRepository(w *wal.WAL) (*UserRepository, error) {
	r := NewUserRepository()
	err := w.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		return r.replay(&rec)
	})
	if err != nil {
		return nil, fmt.Errorf("recover users from wal: %w", err)
	}
	r.wal = w
	return r, nil
}

func (r *UserRepository) replay(rec *walRecord) error {
	switch rec.Kind {
	case recordKindCreated:
		if rec.User == nil {
			return fmt.Errorf("user record without user")
		}
		u := domain.User(*rec.User)
		r.byID[u.ID] = u
		r.byEmail[u.Email] = u.ID
	case recordKindDeleted:
		r.remove(rec.ID)
	default:
		return fmt.Errorf("unknown wal record kind %q", rec.Kind)
	}
	return nil
}

func (r *UserRepository) remove(id uuid.UUID) {
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return domain.ErrEmailAlreadyExists
	}
	u := *user
	u.Email = email
	if r.wal != nil {
		wu := walUser(u)
		if err := r.wal.Write(&walRecord{Kind: recordKindCreated, User: &wu}); err != nil {
			return fmt.Errorf("write user wal: %w", err)
		}
	}
	r.byID[u.ID] = u
	r.byEmail[email] = u.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := r.byID[id]
	return &u, nil
}

// Delete 刪除使用者，不存在時回傳 domain.ErrUserNotFound
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return domain.ErrUserNotFound
	}
	if r.wal != nil {
		if err := r.wal.Write(&walRecord{Kind: recordKindDeleted, ID: id}); err != nil {
			return fmt.Errorf("write user wal: %w", err)
		}
	}
	r.remove(id)
	return nil
}

var _ usecase.UserRepository = (*UserRepository)(nil)
