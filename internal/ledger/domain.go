// Package ledger implements the double-entry bookkeeping core: chart of
// accounts, journal entries, fiscal periods, balance caching and reporting.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountClass enumerates chart of accounts classifications.
type AccountClass string

const (
	ClassCurrentAsset      AccountClass = "CURRENT_ASSET"
	ClassFixedAsset        AccountClass = "FIXED_ASSET"
	ClassOtherAsset        AccountClass = "OTHER_ASSET"
	ClassContraAsset       AccountClass = "CONTRA_ASSET"
	ClassCurrentLiability  AccountClass = "CURRENT_LIABILITY"
	ClassLongTermLiability AccountClass = "LONG_TERM_LIABILITY"
	ClassEquity            AccountClass = "EQUITY"
	ClassRevenue           AccountClass = "REVENUE"
	ClassOtherRevenue      AccountClass = "OTHER_REVENUE"
	ClassContraRevenue     AccountClass = "CONTRA_REVENUE"
	ClassCOGSExpense       AccountClass = "COGS_EXPENSE"
	ClassOperatingExpense  AccountClass = "OPERATING_EXPENSE"
	ClassOtherExpense      AccountClass = "OTHER_EXPENSE"
)

// Valid reports whether the classification is a known value.
func (c AccountClass) Valid() bool {
	switch c {
	case ClassCurrentAsset, ClassFixedAsset, ClassOtherAsset, ClassContraAsset,
		ClassCurrentLiability, ClassLongTermLiability, ClassEquity,
		ClassRevenue, ClassOtherRevenue, ClassContraRevenue,
		ClassCOGSExpense, ClassOperatingExpense, ClassOtherExpense:
		return true
	}
	return false
}

// BalanceSide identifies the side on which an account balance grows.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// NormalSide returns the conventional balance side for the classification.
// Assets, expenses and contra-revenue are debit-normal; everything else is
// credit-normal.
func (c AccountClass) NormalSide() BalanceSide {
	switch c {
	case ClassCurrentAsset, ClassFixedAsset, ClassOtherAsset, ClassContraAsset,
		ClassCOGSExpense, ClassOperatingExpense, ClassOtherExpense,
		ClassContraRevenue:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	TenantID  int64
	Code      string
	Name      string
	Class     AccountClass
	ParentID  *int64
	IsActive  bool
	IsSystem  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalSide returns the account's conventional balance side.
func (a Account) NormalSide() BalanceSide {
	return a.Class.NormalSide()
}

// EntryType enumerates journal entry categories.
type EntryType string

const (
	EntryTypeStandard  EntryType = "STANDARD"
	EntryTypeAdjusting EntryType = "ADJUSTING"
	EntryTypeClosing   EntryType = "CLOSING"
	EntryTypeReversing EntryType = "REVERSING"
	EntryTypeRecurring EntryType = "RECURRING"
)

// NumberPrefix returns the sequence prefix used in entry numbers.
func (t EntryType) NumberPrefix() string {
	switch t {
	case EntryTypeAdjusting:
		return "ADJ"
	case EntryTypeClosing:
		return "CLS"
	case EntryTypeReversing:
		return "RVJ"
	case EntryTypeRecurring:
		return "RCR"
	default:
		return "JE"
	}
}

// EntryStatus enumerates journal entry lifecycle states.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// SourceKind enumerates business documents a journal entry may originate from.
type SourceKind string

const (
	SourceInvoice          SourceKind = "INVOICE"
	SourcePayment          SourceKind = "PAYMENT"
	SourceBill             SourceKind = "BILL"
	SourceInventoryReceipt SourceKind = "INVENTORY_RECEIPT"
	SourceInventoryIssue   SourceKind = "INVENTORY_ISSUE"
)

// SourceRef links an entry to the document that produced it. The zero value
// means no source document.
type SourceRef struct {
	Kind SourceKind
	ID   uuid.UUID
}

// IsZero reports whether the reference is unset.
func (s SourceRef) IsZero() bool {
	return s.Kind == "" && s.ID == uuid.Nil
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	TenantID     int64
	Number       string
	Date         time.Time
	Memo         string
	Type         EntryType
	Status       EntryStatus
	Reference    string
	PeriodID     *int64
	Source       SourceRef
	ReversedByID *int64
	PostedBy     *int64
	PostedAt     *time.Time
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit and Credit is strictly positive.
type JournalLine struct {
	ID          int64
	EntryID     int64
	LineNo      int32
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
}

// LineInput describes one journal line in a posting request.
type LineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateEntryInput groups fields required to create a journal entry.
type CreateEntryInput struct {
	TenantID  int64
	Date      time.Time
	Memo      string
	Type      EntryType
	Reference string
	Source    SourceRef
	Lines     []LineInput
	AutoPost  bool
	CreatedBy int64
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	TenantID     int64
	EntryID      int64
	ReversalDate *time.Time
	Memo         string
	CreatedBy    int64
}

// AccountBalanceView reports an account balance as an unsigned magnitude plus
// the side it falls on.
type AccountBalanceView struct {
	AccountID   int64
	AsOf        time.Time
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balance     decimal.Decimal
	Side        BalanceSide
}

// AccountTransaction is one posted line on an account with a running balance.
type AccountTransaction struct {
	EntryID        int64
	EntryNumber    string
	Date           time.Time
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("ledger: invalid input")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal entry requires at least two lines", ErrValidation)
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrPeriodNotFound indicates no fiscal period covers a date.
	ErrPeriodNotFound = errors.New("ledger: no fiscal period for date")
	// ErrAlreadyReversed indicates a second reversal attempt.
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")
	// ErrNotPosted indicates the entry is not in POSTED status.
	ErrNotPosted = errors.New("ledger: entry is not posted")
	// ErrMappingNotFound indicates no account mapping resolved.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
	// ErrSystemAccount indicates a protected account cannot be changed.
	ErrSystemAccount = errors.New("ledger: system account is protected")
	// ErrAccountReferenced blocks deletion of accounts with posted lines.
	ErrAccountReferenced = errors.New("ledger: account referenced by journal lines")
)

// UnbalancedEntryError reports debit and credit totals that differ.
type UnbalancedEntryError struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("ledger: entry unbalanced: debit %s != credit %s",
		e.DebitTotal.StringFixed(2), e.CreditTotal.StringFixed(2))
}

// PostedEntryError reports an illegal mutation of a non-draft entry.
type PostedEntryError struct {
	EntryID int64
	Status  EntryStatus
}

func (e *PostedEntryError) Error() string {
	return fmt.Sprintf("ledger: entry %d is %s and cannot be modified", e.EntryID, e.Status)
}

// ClosedPeriodError reports a posting attempt into a closed period.
type ClosedPeriodError struct {
	PeriodID int64
	Name     string
}

func (e *ClosedPeriodError) Error() string {
	return fmt.Sprintf("ledger: fiscal period %q is closed", e.Name)
}

// InactiveAccountError carries the codes of inactive accounts referenced by
// an entry.
type InactiveAccountError struct {
	Codes []string
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("ledger: inactive accounts: %s", strings.Join(e.Codes, ", "))
}

// lineNoStep is the gap between consecutive line numbers.
const lineNoStep = 10

// NormalizeLines rounds amounts half-up to two decimals, validates each line
// and assigns gapped line numbers. The returned totals are the rounded sums.
func NormalizeLines(inputs []LineInput) ([]JournalLine, decimal.Decimal, decimal.Decimal, error) {
	if len(inputs) < 2 {
		return nil, decimal.Zero, decimal.Zero, ErrTooFewLines
	}
	lines := make([]JournalLine, 0, len(inputs))
	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	for idx, in := range inputs {
		if in.AccountID == 0 {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: line %d missing account", ErrValidation, idx+1)
		}
		debit := in.Debit.Round(2)
		credit := in.Credit.Round(2)
		if debit.IsNegative() || credit.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: line %d negative amount", ErrValidation, idx+1)
		}
		if debit.IsPositive() == credit.IsPositive() {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: line %d must have exactly one of debit or credit", ErrValidation, idx+1)
		}
		debitTotal = debitTotal.Add(debit)
		creditTotal = creditTotal.Add(credit)
		lines = append(lines, JournalLine{
			LineNo:      int32((idx + 1) * lineNoStep),
			AccountID:   in.AccountID,
			Description: in.Description,
			Debit:       debit,
			Credit:      credit,
		})
	}
	if !debitTotal.Equal(creditTotal) {
		return nil, decimal.Zero, decimal.Zero, &UnbalancedEntryError{DebitTotal: debitTotal, CreditTotal: creditTotal}
	}
	return lines, debitTotal, creditTotal, nil
}

// FormatEntryNumber renders the canonical entry number.
func FormatEntryNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}
