package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates creating, posting and reversing journal entries and
// serves balance queries. All mutations run inside one repository transaction
// so a validation failure leaves no partial state.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the posting service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates and persists a draft journal entry, optionally
// posting it in the same transaction.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.createEntryTx(ctx, tx, input)
		if err != nil {
			return err
		}
		if input.AutoPost {
			created, err = s.postEntryTx(ctx, tx, input.TenantID, created.ID, input.CreatedBy)
			if err != nil {
				return err
			}
		}
		entry = created
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.CreatedBy, "journal.create", entry, map[string]any{
		"number":    entry.Number,
		"auto_post": input.AutoPost,
	})
	return entry, nil
}

// PostEntry locks the entry exclusively and transitions it to POSTED,
// updating the balance cache for every affected account and period in the
// same transaction.
func (s *Service) PostEntry(ctx context.Context, tenantID, entryID, postedBy int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", ErrValidation)
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.postEntryTx(ctx, tx, tenantID, entryID, postedBy)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, tenantID, postedBy, "journal.post", entry, map[string]any{
		"number": entry.Number,
	})
	return entry, nil
}

// ReverseEntry creates and posts a line-for-line mirror of a posted entry and
// marks the original REVERSED, all in one transaction. Reversing twice fails.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", ErrValidation)
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, input.TenantID, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status == EntryStatusReversed || original.ReversedByID != nil {
			return ErrAlreadyReversed
		}
		if original.Status != EntryStatusPosted {
			return ErrNotPosted
		}
		lines, err := tx.GetEntryLines(ctx, original.ID)
		if err != nil {
			return err
		}
		date := original.Date
		if input.ReversalDate != nil {
			date = *input.ReversalDate
		}
		posting := CreateEntryInput{
			TenantID:  input.TenantID,
			Date:      date,
			Memo:      defaultReversalMemo(input.Memo, original.Number),
			Type:      EntryTypeReversing,
			Reference: fmt.Sprintf("REV-%s", original.Number),
			Source:    original.Source,
			Lines:     mirrorLines(lines),
			CreatedBy: input.CreatedBy,
		}
		created, err := s.createEntryTx(ctx, tx, posting)
		if err != nil {
			return err
		}
		created, err = s.postEntryTx(ctx, tx, input.TenantID, created.ID, input.CreatedBy)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, created.ID); err != nil {
			return err
		}
		reversal = created
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.CreatedBy, "journal.reverse", reversal, map[string]any{
		"original_id":     input.EntryID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// PostPreparedEntry creates and posts an entry inside a caller-supplied
// transaction. It exists so collaborating modules can make a ledger posting
// part of their own atomic unit of work.
func (s *Service) PostPreparedEntry(ctx context.Context, tx TxRepository, input CreateEntryInput) (JournalEntry, error) {
	created, err := s.createEntryTx(ctx, tx, input)
	if err != nil {
		return JournalEntry{}, err
	}
	return s.postEntryTx(ctx, tx, input.TenantID, created.ID, input.CreatedBy)
}

// AccountBalance sums all posted lines for the account dated at or before
// asOf and reports the result as a magnitude plus an explicit side.
func (s *Service) AccountBalance(ctx context.Context, tenantID, accountID int64, asOf time.Time) (AccountBalanceView, error) {
	var view AccountBalanceView
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		totals, err := tx.SumAccountAsOf(ctx, tenantID, accountID, asOf)
		if err != nil {
			return err
		}
		view = BalanceFromTotals(accountID, account.NormalSide(), totals.Debit, totals.Credit)
		view.AsOf = asOf
		return nil
	})
	if err != nil {
		return AccountBalanceView{}, err
	}
	return view, nil
}

// PeriodBalance reads the cached balance row maintained at posting time for
// one account and fiscal period (period 0 covers entries posted outside any
// period). Missing rows come back zeroed.
func (s *Service) PeriodBalance(ctx context.Context, tenantID, accountID, periodID int64) (AccountBalance, error) {
	var bal AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, tenantID, accountID); err != nil {
			return err
		}
		var err error
		bal, err = tx.GetAccountBalanceCache(ctx, tenantID, accountID, periodID)
		return err
	})
	if err != nil {
		return AccountBalance{}, err
	}
	return bal, nil
}

// TrialBalance builds the trial balance over every active account as of the
// given date. Total debits equal total credits for every valid ledger.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, asOf time.Time, includeZero bool) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		totals, err := tx.SumAllAccountsAsOf(ctx, tenantID, asOf)
		if err != nil {
			return err
		}
		tb = BuildTrialBalance(totals, includeZero)
		return nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

// AccountTransactions lists posted lines on an account within [from, to]
// with a running balance on the account's normal side.
func (s *Service) AccountTransactions(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]AccountTransaction, error) {
	var txns []AccountTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		rows, err := tx.ListAccountTransactions(ctx, tenantID, accountID, from, to)
		if err != nil {
			return err
		}
		running := decimal.Zero
		for i := range rows {
			if account.NormalSide() == SideDebit {
				running = running.Add(rows[i].Debit).Sub(rows[i].Credit)
			} else {
				running = running.Add(rows[i].Credit).Sub(rows[i].Debit)
			}
			rows[i].RunningBalance = running
		}
		txns = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Service) createEntryTx(ctx context.Context, tx TxRepository, input CreateEntryInput) (JournalEntry, error) {
	if input.TenantID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: tenant required", ErrValidation)
	}
	if input.Date.IsZero() {
		return JournalEntry{}, fmt.Errorf("%w: entry date required", ErrValidation)
	}
	entryType := input.Type
	if entryType == "" {
		entryType = EntryTypeStandard
	}
	lines, _, _, err := NormalizeLines(input.Lines)
	if err != nil {
		return JournalEntry{}, err
	}

	var periodID *int64
	period, err := tx.FindPeriodByDate(ctx, input.TenantID, input.Date)
	switch {
	case err == nil:
		periodID = &period.ID
	case errors.Is(err, ErrPeriodNotFound):
		// Entries outside any defined period are allowed; gating applies
		// only when a period resolves.
	default:
		return JournalEntry{}, err
	}

	prefix := entryType.NumberPrefix()
	seq, err := tx.NextSequence(ctx, input.TenantID, prefix, input.Date.Year())
	if err != nil {
		return JournalEntry{}, err
	}

	now := s.now().UTC()
	entry := JournalEntry{
		TenantID:  input.TenantID,
		Number:    FormatEntryNumber(prefix, input.Date.Year(), seq),
		Date:      input.Date,
		Memo:      input.Memo,
		Type:      entryType,
		Status:    EntryStatusDraft,
		Reference: input.Reference,
		PeriodID:  periodID,
		Source:    input.Source,
		CreatedBy: input.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
		return JournalEntry{}, err
	}
	for i := range lines {
		lines[i].EntryID = inserted.ID
	}
	inserted.Lines = lines
	return inserted, nil
}

func (s *Service) postEntryTx(ctx context.Context, tx TxRepository, tenantID, entryID, postedBy int64) (JournalEntry, error) {
	entry, err := tx.GetEntryForUpdate(ctx, tenantID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.Status != EntryStatusDraft {
		return JournalEntry{}, &PostedEntryError{EntryID: entry.ID, Status: entry.Status}
	}
	lines, err := tx.GetEntryLines(ctx, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(lines) < 2 {
		return JournalEntry{}, ErrTooFewLines
	}

	// Recompute totals from persisted lines: defense in depth against any
	// mutation between create and post.
	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	accountIDs := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		debitTotal = debitTotal.Add(line.Debit)
		creditTotal = creditTotal.Add(line.Credit)
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			accountIDs = append(accountIDs, line.AccountID)
		}
	}
	if !debitTotal.Equal(creditTotal) {
		return JournalEntry{}, &UnbalancedEntryError{DebitTotal: debitTotal, CreditTotal: creditTotal}
	}

	if entry.PeriodID != nil {
		period, err := tx.GetPeriodForUpdate(ctx, tenantID, *entry.PeriodID)
		if err != nil {
			return JournalEntry{}, err
		}
		if period.BlocksPosting() {
			return JournalEntry{}, &ClosedPeriodError{PeriodID: period.ID, Name: period.Name}
		}
	}

	accounts, err := tx.GetAccountsByIDs(ctx, tenantID, accountIDs)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(accounts) != len(accountIDs) {
		return JournalEntry{}, ErrAccountNotFound
	}
	sides := make(map[int64]BalanceSide, len(accounts))
	var inactive []string
	for _, account := range accounts {
		sides[account.ID] = account.NormalSide()
		if !account.IsActive {
			inactive = append(inactive, account.Code)
		}
	}
	if len(inactive) > 0 {
		return JournalEntry{}, &InactiveAccountError{Codes: inactive}
	}

	now := s.now().UTC()
	if err := tx.MarkPosted(ctx, entry.ID, postedBy, now); err != nil {
		return JournalEntry{}, err
	}

	var periodID int64
	if entry.PeriodID != nil {
		periodID = *entry.PeriodID
	}
	for _, delta := range AggregateDeltas(tenantID, periodID, lines, sides) {
		if err := tx.ApplyBalanceDelta(ctx, delta); err != nil {
			return JournalEntry{}, err
		}
	}

	entry.Status = EntryStatusPosted
	entry.PostedBy = &postedBy
	entry.PostedAt = &now
	entry.Lines = lines
	return entry, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func mirrorLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
