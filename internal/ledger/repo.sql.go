package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds FOR UPDATE waits so
// contended transactions fail fast instead of deadlocking.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds a ledger repository to an existing transaction so
// other modules can post journal entries atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.lockTimeout, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, tenant_id, code, name, class, parent_id, is_active, is_system, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Class, &a.ParentID, &a.IsActive, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetAccount(ctx context.Context, tenantID, accountID int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, accountID))
}

func (r *txRepository) GetAccountsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) ListAccounts(ctx context.Context, tenantID int64, activeOnly bool) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id=$1 ORDER BY code`
	if activeOnly {
		query = `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id=$1 AND is_active ORDER BY code`
	}
	rows, err := r.tx.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, account Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, class, parent_id, is_active, is_system)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		account.TenantID, account.Code, account.Name, account.Class, account.ParentID, account.IsActive, account.IsSystem)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, account Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$3, is_active=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		account.TenantID, account.ID, account.Name, account.IsActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, tenantID, accountID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) AccountHasLines(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entry_lines WHERE account_id=$1)`, accountID).Scan(&exists)
	return exists, err
}

const periodColumns = `id, tenant_id, name, start_date, end_date, status, created_at, updated_at`

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func (r *txRepository) FindPeriodByDate(ctx context.Context, tenantID int64, date time.Time) (FiscalPeriod, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE tenant_id=$1 AND $2::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, tenantID, date))
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (FiscalPeriod, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, periodID))
}

func (r *txRepository) InsertPeriod(ctx context.Context, period FiscalPeriod) (FiscalPeriod, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO fiscal_periods (tenant_id, name, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		period.TenantID, period.Name, period.StartDate, period.EndDate, period.Status)
	if err := row.Scan(&period.ID, &period.CreatedAt, &period.UpdatedAt); err != nil {
		return FiscalPeriod{}, err
	}
	return period, nil
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, tenantID, periodID int64, status PeriodStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, periodID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) ListPeriods(ctx context.Context, tenantID int64) ([]FiscalPeriod, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE tenant_id=$1 ORDER BY start_date`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []FiscalPeriod
	for rows.Next() {
		var p FiscalPeriod
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *txRepository) NextSequence(ctx context.Context, tenantID int64, prefix string, year int) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (tenant_id, prefix, year, last_value)
VALUES ($1,$2,$3,1)
ON CONFLICT (tenant_id, prefix, year)
DO UPDATE SET last_value = entry_sequences.last_value + 1
RETURNING last_value`, tenantID, prefix, year).Scan(&seq)
	return seq, err
}

const entryColumns = `id, tenant_id, number, date, memo, type, status, reference, period_id, source_kind, source_id, reversed_by_id, posted_by, posted_at, created_by, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceKind *string
	var sourceID *uuid.UUID
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Date, &e.Memo, &e.Type, &e.Status, &e.Reference,
		&e.PeriodID, &sourceKind, &sourceID, &e.ReversedByID, &e.PostedBy, &e.PostedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	if sourceKind != nil && sourceID != nil {
		e.Source = SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
	}
	return e, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	var sourceKind *string
	var sourceID *uuid.UUID
	if !entry.Source.IsZero() {
		kind := string(entry.Source.Kind)
		id := entry.Source.ID
		sourceKind = &kind
		sourceID = &id
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, number, date, memo, type, status, reference, period_id, source_kind, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		entry.TenantID, entry.Number, entry.Date, entry.Memo, entry.Type, entry.Status, entry.Reference,
		entry.PeriodID, sourceKind, sourceID, entry.CreatedBy)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_entry_lines (entry_id, line_no, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.LineNo, line.AccountID, line.Description, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entryID))
}

func (r *txRepository) GetEntryLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, line_no, account_id, description, debit, credit, created_at
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNo, &line.AccountID, &line.Description, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, postedBy int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_by=$3, posted_at=$4, updated_at=NOW()
WHERE id=$1 AND status=$5`, entryID, EntryStatusPosted, postedBy, at, EntryStatusDraft)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID, reversedByID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, reversed_by_id=$3, updated_at=NOW()
WHERE id=$1 AND status=$4`, entryID, EntryStatusReversed, reversedByID, EntryStatusPosted)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, delta BalanceDelta) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_balances (tenant_id, account_id, period_id, period_debit, period_credit, beginning_balance, ending_balance)
VALUES ($1,$2,$3,$4,$5,0,$6)
ON CONFLICT (tenant_id, account_id, period_id)
DO UPDATE SET period_debit = account_balances.period_debit + EXCLUDED.period_debit,
              period_credit = account_balances.period_credit + EXCLUDED.period_credit,
              ending_balance = account_balances.ending_balance + EXCLUDED.ending_balance,
              updated_at = NOW()`,
		delta.TenantID, delta.AccountID, delta.PeriodID, delta.Debit, delta.Credit, delta.Net())
	return err
}

func (r *txRepository) GetAccountBalanceCache(ctx context.Context, tenantID, accountID, periodID int64) (AccountBalance, error) {
	var b AccountBalance
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, account_id, period_id, period_debit, period_credit, beginning_balance, ending_balance
FROM account_balances WHERE tenant_id=$1 AND account_id=$2 AND period_id=$3`, tenantID, accountID, periodID).
		Scan(&b.TenantID, &b.AccountID, &b.PeriodID, &b.PeriodDebit, &b.PeriodCredit, &b.BeginningBalance, &b.EndingBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBalance{TenantID: tenantID, AccountID: accountID, PeriodID: periodID}, nil
		}
		return AccountBalance{}, err
	}
	return b, nil
}

// Posted history includes REVERSED entries: a reversed entry stays in the
// ledger, cancelled by its reversing entry.
const postedStatuses = `('POSTED','REVERSED')`

func (r *txRepository) SumAccountAsOf(ctx context.Context, tenantID, accountID int64, asOf time.Time) (AccountTotals, error) {
	totals := AccountTotals{}
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND l.account_id=$2 AND e.date <= $3 AND e.status IN `+postedStatuses,
		tenantID, accountID, asOf).Scan(&totals.Debit, &totals.Credit)
	return totals, err
}

func (r *txRepository) SumAllAccountsAsOf(ctx context.Context, tenantID int64, asOf time.Time) ([]AccountTotals, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.tenant_id, a.code, a.name, a.class, a.parent_id, a.is_active, a.is_system, a.created_at, a.updated_at,
       COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM accounts a
LEFT JOIN journal_entry_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id AND e.date <= $2 AND e.status IN `+postedStatuses+`
WHERE a.tenant_id=$1 AND a.is_active
GROUP BY a.id
ORDER BY a.code`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []AccountTotals
	for rows.Next() {
		var t AccountTotals
		a := &t.Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Class, &a.ParentID, &a.IsActive, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *txRepository) ListAccountTransactions(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]AccountTransaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.number, e.date, l.description, l.debit, l.credit
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND l.account_id=$2 AND e.date >= $3 AND e.date <= $4 AND e.status IN `+postedStatuses+`
ORDER BY e.date ASC, e.id ASC, l.line_no ASC`, tenantID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []AccountTransaction
	for rows.Next() {
		var t AccountTransaction
		if err := rows.Scan(&t.EntryID, &t.EntryNumber, &t.Date, &t.Description, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepository) LookupMapping(ctx context.Context, tenantID int64, module, key string) (int64, error) {
	var accountID int64
	err := r.tx.QueryRow(ctx, `SELECT account_id FROM account_mappings WHERE tenant_id=$1 AND module=$2 AND key=$3`, tenantID, module, key).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMappingNotFound
		}
		return 0, err
	}
	return accountID, nil
}

func (r *txRepository) ListDueRecurring(ctx context.Context, now time.Time) ([]RecurringTemplate, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, memo, lines, auto_post, recur_interval, next_run_at, created_by
FROM recurring_templates WHERE next_run_at <= $1 ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []RecurringTemplate
	for rows.Next() {
		var tpl RecurringTemplate
		var linesJSON []byte
		if err := rows.Scan(&tpl.ID, &tpl.TenantID, &tpl.Memo, &linesJSON, &tpl.AutoPost, &tpl.Interval, &tpl.NextRunAt, &tpl.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(linesJSON, &tpl.Lines); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *txRepository) MarkRecurringRun(ctx context.Context, templateID int64, ranAt, nextRun time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE recurring_templates SET last_run_at=$2, next_run_at=$3, updated_at=NOW() WHERE id=$1`, templateID, ranAt, nextRun)
	return err
}
