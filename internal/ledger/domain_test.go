package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalSideByClass(t *testing.T) {
	debitNormal := []AccountClass{
		ClassCurrentAsset, ClassFixedAsset, ClassOtherAsset, ClassContraAsset,
		ClassCOGSExpense, ClassOperatingExpense, ClassOtherExpense, ClassContraRevenue,
	}
	for _, class := range debitNormal {
		require.Equal(t, SideDebit, class.NormalSide(), "class %s", class)
	}
	creditNormal := []AccountClass{
		ClassCurrentLiability, ClassLongTermLiability, ClassEquity,
		ClassRevenue, ClassOtherRevenue,
	}
	for _, class := range creditNormal {
		require.Equal(t, SideCredit, class.NormalSide(), "class %s", class)
	}
}

func TestAccountClassValid(t *testing.T) {
	require.True(t, ClassEquity.Valid())
	require.True(t, ClassContraRevenue.Valid())
	require.False(t, AccountClass("PROFIT").Valid())
	require.False(t, AccountClass("").Valid())
}

func TestNormalizeLinesRoundsAndNumbers(t *testing.T) {
	lines, debit, credit, err := NormalizeLines([]LineInput{
		{AccountID: 1, Debit: dec("10.005")},
		{AccountID: 2, Credit: dec("10.005")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	// Half-up rounding to cents.
	require.True(t, lines[0].Debit.Equal(dec("10.01")))
	require.True(t, lines[1].Credit.Equal(dec("10.01")))
	require.True(t, debit.Equal(credit))
	require.Equal(t, int32(10), lines[0].LineNo)
	require.Equal(t, int32(20), lines[1].LineNo)
}

func TestNormalizeLinesRejectsTooFew(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{{AccountID: 1, Debit: dec("5")}})
	require.True(t, errors.Is(err, ErrTooFewLines))
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizeLinesRejectsBothSides(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{
		{AccountID: 1, Debit: dec("5"), Credit: dec("5")},
		{AccountID: 2, Credit: dec("5")},
	})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizeLinesRejectsNeitherSide(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{
		{AccountID: 1},
		{AccountID: 2, Credit: dec("5")},
	})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizeLinesRejectsNegative(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{
		{AccountID: 1, Debit: dec("-5")},
		{AccountID: 2, Credit: dec("-5")},
	})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizeLinesRejectsMissingAccount(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{
		{Debit: dec("5")},
		{AccountID: 2, Credit: dec("5")},
	})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizeLinesUnbalanced(t *testing.T) {
	_, _, _, err := NormalizeLines([]LineInput{
		{AccountID: 1, Debit: dec("10")},
		{AccountID: 2, Credit: dec("9.99")},
	})
	var unbalanced *UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.True(t, unbalanced.DebitTotal.Equal(dec("10")))
	require.True(t, unbalanced.CreditTotal.Equal(dec("9.99")))
}

func TestNormalizeLinesBalancedAfterRounding(t *testing.T) {
	// Inputs differ by less than half a cent and round to the same total.
	lines, _, _, err := NormalizeLines([]LineInput{
		{AccountID: 1, Debit: dec("10.001")},
		{AccountID: 2, Credit: dec("10.002")},
	})
	require.NoError(t, err)
	require.True(t, lines[0].Debit.Equal(lines[1].Credit))
}

func TestFormatEntryNumber(t *testing.T) {
	require.Equal(t, "JE-2026-000001", FormatEntryNumber("JE", 2026, 1))
	require.Equal(t, "ADJ-2026-001234", FormatEntryNumber("ADJ", 2026, 1234))
	require.Equal(t, "RVJ-2025-999999", FormatEntryNumber("RVJ", 2025, 999999))
}

func TestNumberPrefixes(t *testing.T) {
	require.Equal(t, "JE", EntryTypeStandard.NumberPrefix())
	require.Equal(t, "ADJ", EntryTypeAdjusting.NumberPrefix())
	require.Equal(t, "CLS", EntryTypeClosing.NumberPrefix())
	require.Equal(t, "RVJ", EntryTypeReversing.NumberPrefix())
	require.Equal(t, "RCR", EntryTypeRecurring.NumberPrefix())
}

func TestBalanceFromTotalsNormalSide(t *testing.T) {
	view := BalanceFromTotals(1, SideDebit, dec("100"), dec("30"))
	require.True(t, view.Balance.Equal(dec("70")))
	require.Equal(t, SideDebit, view.Side)

	view = BalanceFromTotals(2, SideCredit, dec("30"), dec("100"))
	require.True(t, view.Balance.Equal(dec("70")))
	require.Equal(t, SideCredit, view.Side)
}

func TestBalanceFromTotalsFlipsSide(t *testing.T) {
	// A credit-normal account driven debit-positive reports on the debit side.
	view := BalanceFromTotals(3, SideCredit, dec("100"), dec("30"))
	require.True(t, view.Balance.Equal(dec("70")))
	require.Equal(t, SideDebit, view.Side)

	view = BalanceFromTotals(4, SideDebit, dec("30"), dec("100"))
	require.True(t, view.Balance.Equal(dec("70")))
	require.Equal(t, SideCredit, view.Side)
}

func TestAggregateDeltasMergesPerAccount(t *testing.T) {
	sides := map[int64]BalanceSide{1: SideDebit, 2: SideCredit}
	lines := []JournalLine{
		{AccountID: 1, Debit: dec("60")},
		{AccountID: 2, Credit: dec("100")},
		{AccountID: 1, Debit: dec("40")},
	}
	deltas := AggregateDeltas(7, 3, lines, sides)
	require.Len(t, deltas, 2)
	require.Equal(t, int64(1), deltas[0].AccountID)
	require.True(t, deltas[0].Debit.Equal(dec("100")))
	require.True(t, deltas[0].Net().Equal(dec("100")))
	require.Equal(t, int64(2), deltas[1].AccountID)
	require.True(t, deltas[1].Net().Equal(dec("100")))
	require.Equal(t, int64(3), deltas[0].PeriodID)
}

func TestBalanceDeltaNetBySide(t *testing.T) {
	d := BalanceDelta{Debit: dec("80"), Credit: dec("30"), Side: SideDebit}
	require.True(t, d.Net().Equal(dec("50")))
	d.Side = SideCredit
	require.True(t, d.Net().Equal(dec("-50")))
}
