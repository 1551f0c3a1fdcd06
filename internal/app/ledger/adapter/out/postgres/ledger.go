package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/postgres"
)

const (
	pgUniqueViolation = "23505"
	pgNumericOverflow = "22003"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          UUID PRIMARY KEY,
	owner_id    UUID NOT NULL UNIQUE,
	balance     BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS statements (
	id          CHAR(26) PRIMARY KEY,
	account_id  UUID NOT NULL REFERENCES accounts(id),
	user_id     UUID NOT NULL,
	type        TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw')),
	amount      BIGINT NOT NULL CHECK (amount > 0),
	description TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statements_account_created ON statements (account_id, created_at, id);
`

const accountColumns = `id, owner_id, balance, created_at, updated_at`

const statementColumns = `id, account_id, user_id, type, amount, description, created_at, updated_at`

// PostgresLedger 以條件式 UPDATE 完成「檢查餘額 + 扣款」，同帳戶的寫入由列鎖排隊
type PostgresLedger struct {
	client *postgres.Client
	now    func() time.Time
}

func NewPostgresLedger(client *postgres.Client) *PostgresLedger {
	return &PostgresLedger{
		client: client,
		// timestamptz 只有微秒精度
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Migrate 建立資料表
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.client.Pool().Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// CreateAccount 開戶
func (l *PostgresLedger) CreateAccount(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	acc := domain.NewAccount(uuid.New(), ownerID, l.now())
	_, err := l.client.Pool().Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		acc.ID, acc.OwnerID, acc.Balance, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

// GetAccount 取得帳戶
func (l *PostgresLedger) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return scanAccount(l.client.Pool().QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// GetAccountByOwner 以使用者身分取得帳戶
func (l *PostgresLedger) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Account, error) {
	return scanAccount(l.client.Pool().QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1`, ownerID))
}

// ListAccounts 列出所有帳戶
func (l *PostgresLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := l.client.Pool().Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Post 單一交易內完成：條件式更新餘額 (不足時不更新任何列)、寫入帳目
// created_at 取 GREATEST(updated_at, now)，同帳戶的帳目時間不會倒退
func (l *PostgresLedger) Post(ctx context.Context, draft *domain.Draft) (*domain.Statement, *domain.Account, error) {
	if err := draft.Validate(); err != nil {
		return nil, nil, err
	}
	delta := draft.Amount
	if draft.Type == domain.StatementTypeWithdraw {
		delta = -delta
	}

	tx, err := l.client.Pool().Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acc, err := scanAccount(tx.QueryRow(ctx, `
		UPDATE accounts
		   SET balance = balance + $2,
		       updated_at = GREATEST(updated_at, $3)
		 WHERE id = $1 AND balance + $2 >= 0
		RETURNING `+accountColumns,
		draft.AccountID, delta, l.now(),
	))
	if err != nil {
		if pgCode(err) == pgNumericOverflow {
			return nil, nil, domain.ErrAmountTooLarge
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nil, err
		}
		// 沒有更新到任何列：帳戶不存在或餘額不足
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, draft.AccountID).Scan(&exists); err != nil {
			return nil, nil, fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return nil, nil, domain.ErrAccountNotFound
		}
		return nil, nil, domain.ErrInsufficientBalance
	}

	// acc.UpdatedAt 已是 GREATEST(舊 updated_at, now)
	stmt := draft.Commit(acc, acc.UpdatedAt)
	_, err = tx.Exec(ctx,
		`INSERT INTO statements (`+statementColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stmt.ID, stmt.AccountID, stmt.UserID, string(stmt.Type), stmt.Amount, stmt.Description, stmt.CreatedAt, stmt.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert statement: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return stmt, acc, nil
}

// ListStatements 依 created_at, id 排序
func (l *PostgresLedger) ListStatements(ctx context.Context, accountID uuid.UUID) ([]*domain.Statement, error) {
	snap, err := l.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snap.Statements, nil
}

// GetStatement 只在 account_id 相符時回傳
func (l *PostgresLedger) GetStatement(ctx context.Context, accountID uuid.UUID, statementID string) (*domain.Statement, error) {
	stmt, err := scanStatement(l.client.Pool().QueryRow(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = $1 AND account_id = $2`,
		statementID, accountID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStatementNotFound
	}
	return stmt, err
}

// Snapshot 在 REPEATABLE READ 唯讀交易內讀出帳戶與帳目
func (l *PostgresLedger) Snapshot(ctx context.Context, accountID uuid.UUID) (*domain.Snapshot, error) {
	tx, err := l.client.Pool().BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acc, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE account_id = $1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	snap := &domain.Snapshot{Account: *acc, Statements: []*domain.Statement{}}
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		snap.Statements = append(snap.Statements, stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	return snap, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.ID, &acc.OwnerID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}

func scanStatement(row pgx.Row) (*domain.Statement, error) {
	var (
		stmt domain.Statement
		typ  string
	)
	if err := row.Scan(&stmt.ID, &stmt.AccountID, &stmt.UserID, &typ, &stmt.Amount,
		&stmt.Description, &stmt.CreatedAt, &stmt.UpdatedAt); err != nil {
		return nil, err
	}
	stmt.Type = domain.StatementType(typ)
	stmt.CreatedAt = stmt.CreatedAt.UTC()
	stmt.UpdatedAt = stmt.UpdatedAt.UTC()
	return &stmt, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ usecase.Ledger = (*PostgresLedger)(nil)
