package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func layer(id int64, receivedAt time.Time, remaining, unitCost string) Layer {
	return Layer{
		ID:           id,
		ReceivedAt:   receivedAt,
		OriginalQty:  decimal.RequireFromString(remaining),
		RemainingQty: decimal.RequireFromString(remaining),
		UnitCost:     decimal.RequireFromString(unitCost),
	}
}

func TestPlanConsumptionOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	layers := []Layer{
		layer(1, base, "100", "5.00"),
		layer(2, base.AddDate(0, 0, 1), "40", "7.00"),
	}

	consumed, total, err := PlanConsumption(layers, decimal.RequireFromString("120"))
	require.NoError(t, err)
	require.Len(t, consumed, 2)

	require.Equal(t, int64(1), consumed[0].LayerID)
	require.True(t, consumed[0].Quantity.Equal(decimal.RequireFromString("100")))
	require.True(t, consumed[0].Cost.Equal(decimal.RequireFromString("500.00")))

	require.Equal(t, int64(2), consumed[1].LayerID)
	require.True(t, consumed[1].Quantity.Equal(decimal.RequireFromString("20")))
	require.True(t, consumed[1].Cost.Equal(decimal.RequireFromString("140.00")))

	require.True(t, total.Equal(decimal.RequireFromString("640.00")))
}

func TestPlanConsumptionTieBreakByInsertionOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	layers := []Layer{
		layer(10, at, "5", "1.00"),
		layer(11, at, "5", "2.00"),
	}

	consumed, total, err := PlanConsumption(layers, decimal.RequireFromString("6"))
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	require.Equal(t, int64(10), consumed[0].LayerID)
	require.True(t, consumed[0].Quantity.Equal(decimal.RequireFromString("5")))
	require.Equal(t, int64(11), consumed[1].LayerID)
	require.True(t, consumed[1].Quantity.Equal(decimal.RequireFromString("1")))
	require.True(t, total.Equal(decimal.RequireFromString("7.00")))
}

func TestPlanConsumptionExactDepletion(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	layers := []Layer{layer(1, base, "50", "3.10")}

	consumed, total, err := PlanConsumption(layers, decimal.RequireFromString("50"))
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	require.True(t, consumed[0].Quantity.Equal(decimal.RequireFromString("50")))
	require.True(t, total.Equal(decimal.RequireFromString("155.00")))
}

func TestPlanConsumptionInsufficientStock(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	layers := []Layer{
		layer(1, base, "30", "5.00"),
		layer(2, base.AddDate(0, 0, 1), "10", "6.00"),
	}

	_, _, err := PlanConsumption(layers, decimal.RequireFromString("41"))
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Requested.Equal(decimal.RequireFromString("41")))
	require.True(t, insufficient.OnHand.Equal(decimal.RequireFromString("40")))
}

func TestPlanConsumptionSkipsDepletedLayers(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	empty := layer(1, base, "0", "4.00")
	empty.Depleted = true
	layers := []Layer{empty, layer(2, base.AddDate(0, 0, 2), "8", "4.50")}

	consumed, total, err := PlanConsumption(layers, decimal.RequireFromString("8"))
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	require.Equal(t, int64(2), consumed[0].LayerID)
	require.True(t, total.Equal(decimal.RequireFromString("36.00")))
}

func TestPlanConsumptionRejectsNonPositiveQuantity(t *testing.T) {
	_, _, err := PlanConsumption(nil, decimal.Zero)
	require.True(t, errors.Is(err, ErrInvalidQuantity))

	_, _, err = PlanConsumption(nil, decimal.RequireFromString("-3"))
	require.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestPlanConsumptionFractionalQuantities(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	layers := []Layer{
		layer(1, base, "2.5", "3.333"),
		layer(2, base.AddDate(0, 0, 1), "2.5", "3.333"),
	}

	consumed, total, err := PlanConsumption(layers, decimal.RequireFromString("3"))
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	// Each leg rounds to cents independently: 2.5*3.333=8.33, 0.5*3.333=1.67.
	require.True(t, consumed[0].Cost.Equal(decimal.RequireFromString("8.33")))
	require.True(t, consumed[1].Cost.Equal(decimal.RequireFromString("1.67")))
	require.True(t, total.Equal(decimal.RequireFromString("10.00")))
}
