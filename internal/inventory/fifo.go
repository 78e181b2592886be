package inventory

import (
	"github.com/shopspring/decimal"
)

// PlanConsumption computes the FIFO depletion of layers for a shipment. The
// caller supplies open layers ordered oldest-first (received_at ascending,
// insertion order breaking ties) and the plan consumes each layer fully
// before touching the next — no layer with remaining quantity is skipped
// while an older one still holds stock. Returns InsufficientStockError when
// the layers cannot cover the quantity; nothing is partially consumed.
func PlanConsumption(layers []Layer, quantity decimal.Decimal) ([]Consumption, decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return nil, decimal.Zero, ErrInvalidQuantity
	}
	onHand := decimal.Zero
	for _, layer := range layers {
		onHand = onHand.Add(layer.RemainingQty)
	}
	if onHand.LessThan(quantity) {
		return nil, decimal.Zero, &InsufficientStockError{Requested: quantity, OnHand: onHand}
	}

	left := quantity
	totalCOGS := decimal.Zero
	var consumed []Consumption
	for _, layer := range layers {
		if !left.IsPositive() {
			break
		}
		if layer.Depleted || !layer.RemainingQty.IsPositive() {
			continue
		}
		take := decimal.Min(layer.RemainingQty, left)
		cost := take.Mul(layer.UnitCost).Round(2)
		consumed = append(consumed, Consumption{
			LayerID:  layer.ID,
			Quantity: take,
			UnitCost: layer.UnitCost,
			Cost:     cost,
		})
		totalCOGS = totalCOGS.Add(cost)
		left = left.Sub(take)
	}
	return consumed, totalCOGS, nil
}
