package ledger

import (
	"github.com/shopspring/decimal"
)

// AccountBalance is a denormalized per-period balance cache row. It is never
// authoritative: it must always equal the summation over posted journal
// lines, and every post updates it in the same transaction.
type AccountBalance struct {
	TenantID         int64
	AccountID        int64
	PeriodID         int64 // zero for the "current" bucket
	PeriodDebit      decimal.Decimal
	PeriodCredit     decimal.Decimal
	BeginningBalance decimal.Decimal
	EndingBalance    decimal.Decimal
}

// BalanceDelta aggregates line amounts hitting one (account, period) pair.
type BalanceDelta struct {
	TenantID  int64
	AccountID int64
	PeriodID  int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Side      BalanceSide
}

// Net returns the signed ending-balance movement for the delta:
// debit-credit for debit-normal accounts, credit-debit otherwise.
func (d BalanceDelta) Net() decimal.Decimal {
	if d.Side == SideDebit {
		return d.Debit.Sub(d.Credit)
	}
	return d.Credit.Sub(d.Debit)
}

// Apply folds the delta into the cache row.
func (b *AccountBalance) Apply(d BalanceDelta) {
	b.PeriodDebit = b.PeriodDebit.Add(d.Debit)
	b.PeriodCredit = b.PeriodCredit.Add(d.Credit)
	b.EndingBalance = b.EndingBalance.Add(d.Net())
}

// AggregateDeltas folds posted lines into one delta per (account, period),
// preserving first-seen order for deterministic persistence.
func AggregateDeltas(tenantID int64, periodID int64, lines []JournalLine, sides map[int64]BalanceSide) []BalanceDelta {
	index := make(map[int64]int, len(lines))
	deltas := make([]BalanceDelta, 0, len(lines))
	for _, line := range lines {
		i, ok := index[line.AccountID]
		if !ok {
			i = len(deltas)
			index[line.AccountID] = i
			deltas = append(deltas, BalanceDelta{
				TenantID:  tenantID,
				AccountID: line.AccountID,
				PeriodID:  periodID,
				Debit:     decimal.Zero,
				Credit:    decimal.Zero,
				Side:      sides[line.AccountID],
			})
		}
		deltas[i].Debit = deltas[i].Debit.Add(line.Debit)
		deltas[i].Credit = deltas[i].Credit.Add(line.Credit)
	}
	return deltas
}

// BalanceFromTotals converts raw debit/credit sums into a magnitude-plus-side
// view using the account's normal side.
func BalanceFromTotals(accountID int64, side BalanceSide, debit, credit decimal.Decimal) AccountBalanceView {
	var balance decimal.Decimal
	if side == SideDebit {
		balance = debit.Sub(credit)
	} else {
		balance = credit.Sub(debit)
	}
	reported := side
	if balance.IsNegative() {
		// Balance flipped to the opposite side; report the magnitude there.
		balance = balance.Neg()
		if side == SideDebit {
			reported = SideCredit
		} else {
			reported = SideDebit
		}
	}
	return AccountBalanceView{
		AccountID:   accountID,
		TotalDebit:  debit,
		TotalCredit: credit,
		Balance:     balance,
		Side:        reported,
	}
}
