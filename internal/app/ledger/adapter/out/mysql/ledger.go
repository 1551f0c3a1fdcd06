package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	OwnerID   string    `gorm:"type:char(36);not null;uniqueIndex"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlStatement 對應資料庫的 statements 表
type sqlStatement struct {
	ID          string    `gorm:"type:char(26);primaryKey"` // ULID
	AccountID   string    `gorm:"type:char(36);not null;index:idx_statements_account_created,priority:1"`
	UserID      string    `gorm:"type:char(36);not null"`
	Type        string    `gorm:"type:varchar(16);not null"`
	Amount      int64     `gorm:"not null"`
	Description string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"type:datetime(6);not null;index:idx_statements_account_created,priority:2"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);not null"`
}

func (*sqlStatement) TableName() string {
	return "statements"
}

// MySQLLedger 以 SELECT ... FOR UPDATE 鎖住單一帳戶列，同帳戶的寫入在資料庫端排隊
type MySQLLedger struct {
	client *mysql.Client
	now    func() time.Time
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		client: client,
		// datetime(6) 只有微秒精度
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Migrate 建立資料表
func (ledger *MySQLLedger) Migrate(ctx context.Context) error {
	return ledger.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlStatement{})
}

// CreateAccount 開戶
func (ledger *MySQLLedger) CreateAccount(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	acc := domain.NewAccount(uuid.New(), ownerID, ledger.now())
	row := fromAccount(acc)
	if err := ledger.client.DB().WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

// GetAccount 取得帳戶
func (ledger *MySQLLedger) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return findAccount(ledger.client.DB().WithContext(ctx), "id = ?", accountID.String())
}

// GetAccountByOwner 以使用者身分取得帳戶
func (ledger *MySQLLedger) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	return findAccount(ledger.client.DB().WithContext(ctx), "owner_id = ?", ownerID.String())
}

// ListAccounts 列出所有帳戶
func (ledger *MySQLLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := ledger.client.DB().WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		acc, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// Post 在同一個資料庫交易內：鎖帳戶列、檢查餘額、寫帳目、更新餘額
func (ledger *MySQLLedger) Post(ctx context.Context, draft *domain.Draft) (*domain.Statement, *domain.Account, error) {
	if err := draft.Validate(); err != nil {
		return nil, nil, err
	}
	var (
		stmt *domain.Statement
		acc  *domain.Account
	)
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 悲觀鎖，只鎖這一個帳戶
		locked, err := findAccount(tx.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", draft.AccountID.String())
		if err != nil {
			return err
		}

		stmt = draft.Commit(locked, ledger.now())
		if err := locked.Apply(stmt); err != nil {
			return err
		}

		result := tx.Model(&sqlAccount{}).
			Where("id = ?", locked.ID.String()).
			Updates(map[string]any{
				"balance":    locked.Balance,
				"updated_at": locked.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("update balance: %w", result.Error)
		}
		if err := tx.Create(fromStatement(stmt)).Error; err != nil {
			return fmt.Errorf("insert statement: %w", err)
		}
		acc = locked
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return stmt, acc, nil
}

// ListStatements 依 created_at, id 排序
func (ledger *MySQLLedger) ListStatements(ctx context.Context, accountID uuid.UUID) ([]*domain.Statement, error) {
	snap, err := ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snap.Statements, nil
}

// GetStatement 只在 account_id 相符時回傳
func (ledger *MySQLLedger) GetStatement(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error) {
	var row sqlStatement
	err := ledger.client.DB().WithContext(ctx).
		Where("id = ? AND account_id = ?", statementID, accountID.String()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStatementNotFound
		}
		return nil, fmt.Errorf("get statement: %w", err)
	}
	return row.toDomain()
}

// Snapshot 在 REPEATABLE READ 唯讀交易內讀出帳戶與帳目，兩者來自同一個一致性視圖
func (ledger *MySQLLedger) Snapshot(ctx context.Context, accountID uuid.UUID) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := findAccount(tx, "id = ?", accountID.String())
		if err != nil {
			return err
		}
		var rows []sqlStatement
		if err := tx.Where("account_id = ?", accountID.String()).
			Order("created_at, id").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("list statements: %w", err)
		}
		snap.Account = *acc
		snap.Statements = make([]*domain.Statement, 0, len(rows))
		for i := range rows {
			stmt, err := rows[i].toDomain()
			if err != nil {
				return err
			}
			snap.Statements = append(snap.Statements, stmt)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func findAccount(db *gorm.DB, query string, arg any) (*domain.Account, error) {
	var row sqlAccount
	if err := db.Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return row.toDomain()
}

func fromAccount(acc *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:        acc.ID.String(),
		OwnerID:   acc.OwnerID.String(),
		Balance:   acc.Balance,
		CreatedAt: acc.CreatedAt,
		UpdatedAt: acc.UpdatedAt,
	}
}

func (r *sqlAccount) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("account id %q: %w", r.ID, err)
	}
	owner, err := uuid.Parse(r.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("account owner %q: %w", r.OwnerID, err)
	}
	return &domain.Account{
		ID:        id,
		OwnerID:   owner,
		Balance:   r.Balance,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

func fromStatement(s *domain.Statement) *sqlStatement {
	return &sqlStatement{
		ID:          s.ID,
		AccountID:   s.AccountID.String(),
		UserID:      s.UserID.String(),
		Type:        string(s.Type),
		Amount:      s.Amount,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (r *sqlStatement) toDomain() (*domain.Statement, error) {
	accountID, err := uuid.Parse(r.AccountID)
	if err != nil {
		return nil, fmt.Errorf("statement account id %q: %w", r.AccountID, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("statement user id %q: %w", r.UserID, err)
	}
	return &domain.Statement{
		ID:          r.ID,
		AccountID:   accountID,
		UserID:      userID,
		Type:        domain.StatementType(r.Type),
		Amount:      r.Amount,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
