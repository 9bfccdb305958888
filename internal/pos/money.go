package pos

import (
	"github.com/shopspring/decimal"

	"farmacia/m/domain"
)

// TaxRate is the fixed sales tax applied to the discounted subtotal.
var TaxRate = decimal.New(15, -2)

// pricedLine is a validated cart line with its catalog snapshot.
type pricedLine struct {
	med          domain.Medication
	quantity     int64
	lineDiscount decimal.Decimal
}

// computeTotals applies the pricing rules. Only the final total is
// rounded; tax is derived from it so that total == subtotal - discount + tax
// holds exactly.
func computeTotals(lines []pricedLine) domain.Totals {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, l := range lines {
		qty := decimal.NewFromInt(l.quantity)
		subtotal = subtotal.Add(l.med.Price.Mul(qty))
		discount = discount.Add(l.lineDiscount.Mul(qty))
	}
	base := subtotal.Sub(discount)
	total := base.Add(base.Mul(TaxRate)).Round(2)
	return domain.Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      total.Sub(base),
		Total:    total,
	}
}
