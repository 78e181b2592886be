package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func totals(id int64, code string, class AccountClass, debit, credit string) AccountTotals {
	return AccountTotals{
		Account: Account{ID: id, Code: code, Name: code, Class: class},
		Debit:   dec(debit),
		Credit:  dec(credit),
	}
}

func TestBuildTrialBalanceBalances(t *testing.T) {
	tb := BuildTrialBalance([]AccountTotals{
		totals(1, "1000", ClassCurrentAsset, "900", "200"),
		totals(2, "2000", ClassCurrentLiability, "0", "300"),
		totals(3, "4000", ClassRevenue, "0", "400"),
	}, false)

	require.Len(t, tb.Rows, 3)
	require.True(t, tb.TotalDebit.Equal(dec("700")))
	require.True(t, tb.TotalCredit.Equal(dec("700")))
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestBuildTrialBalanceOmitsZeroRows(t *testing.T) {
	rows := []AccountTotals{
		totals(1, "1000", ClassCurrentAsset, "100", "100"),
		totals(2, "4000", ClassRevenue, "0", "0"),
	}

	tb := BuildTrialBalance(rows, false)
	require.Empty(t, tb.Rows)

	tb = BuildTrialBalance(rows, true)
	require.Len(t, tb.Rows, 2)
	require.True(t, tb.Rows[0].Debit.IsZero())
	require.True(t, tb.Rows[0].Credit.IsZero())
}

func TestBuildTrialBalanceAbnormalSide(t *testing.T) {
	// An overdrawn cash account shows in the credit column.
	tb := BuildTrialBalance([]AccountTotals{
		totals(1, "1000", ClassCurrentAsset, "100", "150"),
	}, false)
	require.Len(t, tb.Rows, 1)
	require.True(t, tb.Rows[0].Debit.IsZero())
	require.True(t, tb.Rows[0].Credit.Equal(dec("50")))
}

func TestBuildTrialBalanceSortedByCode(t *testing.T) {
	tb := BuildTrialBalance([]AccountTotals{
		totals(3, "4000", ClassRevenue, "0", "10"),
		totals(1, "1000", ClassCurrentAsset, "10", "0"),
		totals(2, "2000", ClassCurrentLiability, "0", "0"),
	}, true)
	require.Equal(t, "1000", tb.Rows[0].Code)
	require.Equal(t, "2000", tb.Rows[1].Code)
	require.Equal(t, "4000", tb.Rows[2].Code)
}
