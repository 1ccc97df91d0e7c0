package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// lineTotal computes unit × qty × (1 − discount/100). Discount is a
// percentage between 0 and 100; validation happens before this is called.
func lineTotal(unit decimal.Decimal, qty int64, discount decimal.Decimal) decimal.Decimal {
	gross := unit.Mul(decimal.NewFromInt(qty))
	if discount.IsZero() {
		return gross
	}
	return gross.Mul(hundred.Sub(discount)).Div(hundred)
}

// splitVAT splits a line's gross total into net and VAT portions.
// When prices are VAT-inclusive and the rate is positive the gross already
// contains VAT: net = gross / (1 + rate/100). Otherwise VAT is added on top:
// vat = gross × rate/100.
func splitVAT(gross, rate decimal.Decimal, inclusive bool) (net, vat decimal.Decimal) {
	if inclusive && rate.IsPositive() {
		net = gross.Div(decimal.NewFromInt(1).Add(rate.Div(hundred)))
		vat = gross.Sub(net)
		return net, vat
	}
	return gross, gross.Mul(rate).Div(hundred)
}

// orderTotals aggregates per-line figures into the cached order columns.
// Profit uses each product's current unit cost, so historical profit drifts
// if costs change after the order; accepted behavior, not a bug.
type orderTotals struct {
	Subtotal   decimal.Decimal
	VATTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	Profit     decimal.Decimal
}

type totalLine struct {
	Gross    decimal.Decimal
	VATRate  decimal.Decimal
	Quantity int64
	UnitCost decimal.Decimal
}

func computeTotals(lines []totalLine, inclusive bool) orderTotals {
	var t orderTotals
	var cost decimal.Decimal
	for _, l := range lines {
		net, vat := splitVAT(l.Gross, l.VATRate, inclusive)
		t.Subtotal = t.Subtotal.Add(net)
		t.VATTotal = t.VATTotal.Add(vat)
		cost = cost.Add(l.UnitCost.Mul(decimal.NewFromInt(l.Quantity)))
	}
	t.GrandTotal = t.Subtotal.Add(t.VATTotal)
	t.Profit = t.Subtotal.Sub(cost)
	return t
}
