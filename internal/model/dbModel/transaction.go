package dbModel

import "time"

type Transaction struct {
	ID                 int64     `db:"id"`
	UserID             int64     `db:"user_id"`
	Symbol             string    `db:"stock_symbol"`
	Kind               string    `db:"transaction_type"`
	Quantity           float64   `db:"quantity"`
	RemainingQuantity  float64   `db:"remaining_quantity"`
	Fee                float64   `db:"fee"`
	PricePerShare      float64   `db:"price_per_share"`
	DirtyPricePerShare float64   `db:"dirty_price_per_share"`
	CostOfShares       float64   `db:"cost_of_shares"`
	TotalCost          float64   `db:"total_cost"`
	Pnl                float64   `db:"pnl"`
	TransactionDate    time.Time `db:"transaction_date"`
}

type User struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
}
