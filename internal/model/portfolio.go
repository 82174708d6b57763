package model

// SymbolPosition is the per-symbol aggregate rebuilt from scratch on every
// portfolio request; it is never persisted.
type SymbolPosition struct {
	Symbol       string
	Quantity     float64
	LastPrice    float64
	CurrentValue float64
	Pl           float64
	Realized     float64
	Unrealized   float64
	TotalFee     float64
}

type TransactionCounts struct {
	Buy  int
	Sell int
}

type InvestedSymbols struct {
	Total         int
	ZeroStocks    int
	NonZeroStocks int
}

// PerformanceSummary holds portfolio-wide scalars over a user's full
// non-dividend transaction history.
type PerformanceSummary struct {
	TotalFee              float64
	TotalRealizedProfit   float64
	TotalRealizedLoss     float64
	TotalUnrealizedProfit float64
	TotalUnrealizedLoss   float64
	TotalTransactions     TransactionCounts
	InvestedSymbols       InvestedSymbols
}
