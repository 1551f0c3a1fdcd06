package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// Service 使用者註冊、登入與 token 解析
type Service struct {
	users      UserRepository
	accounts   AccountDirectory
	tokens     TokenManager
	logger     *logging.Logger
	bcryptCost int
	now        func() time.Time
}

// Option Service 選項
type Option func(*Service)

// WithBcryptCost 設定 bcrypt cost，測試時可調低
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithLogger 設定 logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(users UserRepository, accounts AccountDirectory, tokens TokenManager, opts ...Option) *Service {
	s := &Service{
		users:      users,
		accounts:   accounts,
		tokens:     tokens,
		logger:     logging.L(),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("identity")
	return s
}

// Register 註冊使用者並開立帳戶
//
// 參數:
//
//	ctx: context
//	reg: 註冊輸入
//
// 回傳:
//
//	*domain.User: 新使用者
//	error: 輸入錯誤、email 重複或儲存錯誤
func (s *Service) Register(ctx context.Context, reg domain.Registration) (*domain.User, error) {
	reg.Normalize()
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, reg.Email); err == nil {
		return nil, domain.ErrEmailAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	accountID, err := s.accounts.OpenAccount(ctx, user.ID)
	if err != nil {
		s.logger.Error("open account failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		// 沒有帳戶的使用者無法使用任何帳務功能，撤銷後才能以同一 email 重新註冊
		// 請求本身可能已被取消，撤銷不沿用其 ctx
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.Error("undo user registration failed", zap.String("user_id", user.ID.String()), zap.Error(delErr))
		}
		return nil, fmt.Errorf("open account: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("account_id", accountID.String()),
	)
	return user, nil
}

// Authenticate 驗證帳密並簽發 session token
// 找不到使用者與密碼錯誤一律回傳 domain.ErrInvalidCredentials
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &domain.Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Profile 取得使用者資料
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ResolvePrincipal 由 bearer token 解析出使用者與其帳戶
// token 無效、使用者已不存在都視為 domain.ErrUnauthenticated
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := s.tokens.ParseAndValidate(token)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	accountID, err := s.accounts.AccountIDForOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	return &domain.Principal{UserID: userID, AccountID: accountID}, nil
}

// ResolveAccountID 由 token 取得帳戶 ID
func (s *Service) ResolveAccountID(ctx context.Context, token string) (uuid.UUID, error) {
	p, err := s.ResolvePrincipal(ctx, token)
	if err != nil {
		return uuid.Nil, err
	}
	return p.AccountID, nil
}
