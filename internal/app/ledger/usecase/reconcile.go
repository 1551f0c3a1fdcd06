package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Divergence 快取餘額與帳目總和不一致的帳戶
type Divergence struct {
	AccountID uuid.UUID `json:"account_id"`
	Cached    int64     `json:"cached"`
	LedgerSum int64     `json:"ledger_sum"`
}

// ReconcileReport 對帳結果
type ReconcileReport struct {
	Accounts    int          `json:"accounts"`
	Statements  int          `json:"statements"`
	Divergences []Divergence `json:"divergences"`
}

// OK 沒有任何不一致
func (r *ReconcileReport) OK() bool {
	return len(r.Divergences) == 0
}

// Reconcile 逐一帳戶以快照比對餘額與帳目總和
// 餘額欄位是讀取時的依據，帳目是可驗證的投影
func (c *CoreUseCase) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	accounts, err := c.ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	report := &ReconcileReport{Divergences: []Divergence{}}
	for _, acc := range accounts {
		snap, err := c.ledger.Snapshot(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot account %s: %w", acc.ID, err)
		}
		report.Accounts++
		report.Statements += len(snap.Statements)
		if !snap.Consistent() {
			c.metrics.RecordDivergence()
			report.Divergences = append(report.Divergences, Divergence{
				AccountID: acc.ID,
				Cached:    snap.Account.Balance,
				LedgerSum: snap.LedgerSum(),
			})
		}
	}

	c.logger.Info("reconcile finished",
		zap.Int("accounts", report.Accounts),
		zap.Int("statements", report.Statements),
		zap.Int("divergences", len(report.Divergences)),
	)
	return report, nil
}
