package model

import "time"

// QuantityEpsilon is the single tolerance used everywhere a floating-point
// share quantity is checked against zero (closed lot, flat position).
const QuantityEpsilon = 1e-6

type TransactionKind string

const (
	KindBuy      TransactionKind = "BUY"
	KindSell     TransactionKind = "SELL"
	KindDividend TransactionKind = "DIVIDEND"
)

// Transaction is one row of the append-only ledger. ID is assigned at
// insertion and defines FIFO matching order; TransactionDate is for display
// and statement ordering only.
type Transaction struct {
	ID                 int64
	UserID             int64
	Symbol             string
	Kind               TransactionKind
	Quantity           float64
	RemainingQuantity  float64
	Fee                float64
	PricePerShare      float64
	DirtyPricePerShare float64
	CostOfShares       float64
	TotalCost          float64
	Pnl                float64
	TransactionDate    time.Time
}

// FillDerived computes the stored display columns from price, quantity and fee.
func (t *Transaction) FillDerived() {
	t.CostOfShares = t.PricePerShare * t.Quantity
	t.TotalCost = t.CostOfShares + t.Fee
	if t.Quantity != 0 {
		t.DirtyPricePerShare = t.TotalCost / t.Quantity
	} else {
		t.DirtyPricePerShare = 0
	}
}
