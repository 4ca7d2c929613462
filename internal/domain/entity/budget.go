package entity

import "github.com/shopspring/decimal"

// Budget is a read-only spending envelope referenced by requests
type Budget struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	UsedAmount  decimal.Decimal `json:"used_amount"`
}

// Remaining returns TotalAmount - UsedAmount
func (b *Budget) Remaining() decimal.Decimal {
	return b.TotalAmount.Sub(b.UsedAmount)
}
