package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/vantage-erp/vantage-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringJournal posts every recurring journal template that is due.
	TaskRecurringJournal = "recurring:journal"
	// TaskLedgerIntegrity verifies cached balances against journal line sums.
	TaskLedgerIntegrity = "ledger:integrity"
)

// NewRecurringJournalTask constructs an Asynq task. The task carries no
// payload: the handler works off the template schedule in the database.
func NewRecurringJournalTask() *asynq.Task {
	return asynq.NewTask(TaskRecurringJournal, nil)
}

// NewLedgerIntegrityTask constructs the integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// RecurringRunner posts due recurring templates; satisfied by the ledger
// service.
type RecurringRunner interface {
	RunRecurring(ctx context.Context, now time.Time) (int, error)
}

// HandleRecurringJournal builds the handler for TaskRecurringJournal.
func HandleRecurringJournal(logger *slog.Logger, runner RecurringRunner, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("recurring_journal")
		ran, err := runner.RunRecurring(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("recurring journal run failed", slog.Int("posted", ran), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("recurring journal run complete", slog.Int("posted", ran))
		return tracker.End(nil)
	}
}

// HandleLedgerIntegrity builds the handler for TaskLedgerIntegrity. It
// recomputes every cached balance from journal lines and reports rows that
// drifted; the cache is diagnostic-only so drift is logged, never repaired
// silently.
func HandleLedgerIntegrity(logger *slog.Logger, pool *pgxpool.Pool, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		rows, err := pool.Query(ctx, `
SELECT b.tenant_id, b.account_id, b.period_id, b.period_debit, b.period_credit,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM account_balances b
LEFT JOIN journal_entries e
  ON e.tenant_id = b.tenant_id
 AND COALESCE(e.period_id, 0) = b.period_id
 AND e.status IN ('POSTED', 'REVERSED')
LEFT JOIN journal_entry_lines l ON l.entry_id = e.id AND l.account_id = b.account_id
GROUP BY b.tenant_id, b.account_id, b.period_id, b.period_debit, b.period_credit
HAVING b.period_debit <> COALESCE(SUM(l.debit), 0)
    OR b.period_credit <> COALESCE(SUM(l.credit), 0)`)
		if err != nil {
			return tracker.End(err)
		}
		defer rows.Close()

		driftByTenant := make(map[int64]int)
		for rows.Next() {
			var tenantID, accountID, periodID int64
			var cachedDebit, cachedCredit, sumDebit, sumCredit string
			if err := rows.Scan(&tenantID, &accountID, &periodID, &cachedDebit, &cachedCredit, &sumDebit, &sumCredit); err != nil {
				return tracker.End(err)
			}
			driftByTenant[tenantID]++
			logger.Warn("balance cache drift",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("account_id", accountID),
				slog.Int64("period_id", periodID),
				slog.String("cached_debit", cachedDebit),
				slog.String("cached_credit", cachedCredit),
				slog.String("sum_debit", sumDebit),
				slog.String("sum_credit", sumCredit))
		}
		if err := rows.Err(); err != nil {
			return tracker.End(err)
		}
		for tenantID, count := range driftByTenant {
			metrics.AddDrift(tenantID, count)
		}
		return tracker.End(nil)
	}
}
