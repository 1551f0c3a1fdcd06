package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/mysql"
)

// sqlUser 對應資料庫的 users 表
type sqlUser struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Password  string    `gorm:"type:varchar(255);not null"` // bcrypt hash
	CreatedAt time.Time `gorm:"type:datetime(6);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null"`
}

func (*sqlUser) TableName() string {
	return "users"
}

// UserRepository GORM 版使用者儲存
type UserRepository struct {
	client *mysql.Client
}

func NewUserRepository(client *mysql.Client) *UserRepository {
	return &UserRepository{client: client}
}

// Migrate 建立 users 表
func (r *UserRepository) Migrate(ctx context.Context) error {
	return r.client.DB().WithContext(ctx).AutoMigrate(&sqlUser{})
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	row := &sqlUser{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     domain.NormalizeEmail(user.Email),
		Password:  user.PasswordHash,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if err := r.client.DB().WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.find(ctx, "id = ?", id.String())
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(ctx, "email = ?", domain.NormalizeEmail(email))
}

// Delete 刪除使用者，不存在時回傳 domain.ErrUserNotFound
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.client.DB().WithContext(ctx).Where("id = ?", id.String()).Delete(&sqlUser{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) find(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row sqlUser
	if err := r.client.DB().WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", row.ID, err)
	}
	return &domain.User{
		ID:           id,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.Password,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}, nil
}

var _ usecase.UserRepository = (*UserRepository)(nil)
