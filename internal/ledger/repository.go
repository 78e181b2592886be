package ledger

import (
	"context"
	"time"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside one atomic unit of
// work. Implementations must guarantee that ForUpdate reads take exclusive
// row locks held until commit or rollback.
type TxRepository interface {
	// Chart of accounts.
	GetAccount(ctx context.Context, tenantID, accountID int64) (Account, error)
	GetAccountsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]Account, error)
	ListAccounts(ctx context.Context, tenantID int64, activeOnly bool) ([]Account, error)
	InsertAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, tenantID, accountID int64) error
	AccountHasLines(ctx context.Context, accountID int64) (bool, error)

	// Fiscal periods.
	FindPeriodByDate(ctx context.Context, tenantID int64, date time.Time) (FiscalPeriod, error)
	GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (FiscalPeriod, error)
	InsertPeriod(ctx context.Context, period FiscalPeriod) (FiscalPeriod, error)
	UpdatePeriodStatus(ctx context.Context, tenantID, periodID int64, status PeriodStatus) error
	ListPeriods(ctx context.Context, tenantID int64) ([]FiscalPeriod, error)

	// Entry number sequences. NextSequence must be atomic under concurrent
	// callers.
	NextSequence(ctx context.Context, tenantID int64, prefix string, year int) (int64, error)

	// Journal entries and lines.
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error
	GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	GetEntryLines(ctx context.Context, entryID int64) ([]JournalLine, error)
	MarkPosted(ctx context.Context, entryID, postedBy int64, at time.Time) error
	MarkReversed(ctx context.Context, entryID, reversedByID int64) error

	// Balance cache and reporting.
	ApplyBalanceDelta(ctx context.Context, delta BalanceDelta) error
	GetAccountBalanceCache(ctx context.Context, tenantID, accountID, periodID int64) (AccountBalance, error)
	SumAccountAsOf(ctx context.Context, tenantID, accountID int64, asOf time.Time) (AccountTotals, error)
	SumAllAccountsAsOf(ctx context.Context, tenantID int64, asOf time.Time) ([]AccountTotals, error)
	ListAccountTransactions(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]AccountTransaction, error)

	// Default account mappings.
	LookupMapping(ctx context.Context, tenantID int64, module, key string) (int64, error)

	// Recurring entry templates.
	ListDueRecurring(ctx context.Context, now time.Time) ([]RecurringTemplate, error)
	MarkRecurringRun(ctx context.Context, templateID int64, ranAt, nextRun time.Time) error
}
