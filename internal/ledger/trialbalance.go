package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TrialBalanceRow is one account line in the trial balance report.
type TrialBalanceRow struct {
	AccountID   int64
	Code        string
	Name        string
	Class       AccountClass
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// TrialBalance lists every account balance such that total debits equal
// total credits.
type TrialBalance struct {
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// AccountTotals carries raw sums for one account when building the report.
type AccountTotals struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// BuildTrialBalance converts per-account debit/credit sums into a trial
// balance. Each account appears in the column of the side its balance falls
// on; zero-balance accounts are omitted unless includeZero is set. The
// grand totals always match because every posted entry balances.
func BuildTrialBalance(totals []AccountTotals, includeZero bool) TrialBalance {
	tb := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, t := range totals {
		view := BalanceFromTotals(t.Account.ID, t.Account.NormalSide(), t.Debit, t.Credit)
		if view.Balance.IsZero() && !includeZero {
			continue
		}
		row := TrialBalanceRow{
			AccountID: t.Account.ID,
			Code:      t.Account.Code,
			Name:      t.Account.Name,
			Class:     t.Account.Class,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		if view.Side == SideDebit {
			row.Debit = view.Balance
		} else {
			row.Credit = view.Balance
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool {
		return tb.Rows[i].Code < tb.Rows[j].Code
	})
	return tb
}
