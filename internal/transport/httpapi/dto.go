package httpapi

import (
	"time"

	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/utils"
)

type userDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type addTransactionRequest struct {
	Symbol          string  `json:"stock_symbol"`
	Kind            string  `json:"transaction_type"`
	Quantity        float64 `json:"quantity"`
	PricePerShare   float64 `json:"price_per_share"`
	Fee             float64 `json:"fee"`
	Amount          float64 `json:"amount"`
	TransactionDate string  `json:"transaction_date"`
}

type transactionDTO struct {
	ID                int64   `json:"id"`
	Symbol            string  `json:"stock_symbol"`
	Kind              string  `json:"transaction_type"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	Fee               float64 `json:"fee"`
	PricePerShare     float64 `json:"price_per_share"`
	TotalCost         float64 `json:"total_cost"`
	Pnl               float64 `json:"pnl"`
	TransactionDate   string  `json:"transaction_date"`
}

type positionDTO struct {
	Symbol       string  `json:"stock_symbol"`
	Quantity     float64 `json:"quantity"`
	LastPrice    float64 `json:"last_price"`
	CurrentValue float64 `json:"current_value"`
	Pl           float64 `json:"pl"`
	Realized     float64 `json:"realized"`
	Unrealized   float64 `json:"unrealized"`
	TotalFee     float64 `json:"total_fee"`
}

type performanceDTO struct {
	TotalFee              float64            `json:"total_fee"`
	TotalRealizedProfit   float64            `json:"total_realized_profit"`
	TotalRealizedLoss     float64            `json:"total_realized_loss"`
	TotalUnrealizedProfit float64            `json:"total_unrealized_profit"`
	TotalUnrealizedLoss   float64            `json:"total_unrealized_loss"`
	TotalTransactions     map[string]int    `json:"total_transactions"`
	InvestedStocks        investedStocksDTO `json:"invested_stocks"`
}

type investedStocksDTO struct {
	Total         int `json:"total"`
	ZeroStocks    int `json:"zero_stocks"`
	NonZeroStocks int `json:"non_zero_stocks"`
}

type importResultDTO struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func convertUser(user model.User) userDTO {
	return userDTO{ID: user.ID, Username: user.Username}
}

func convertTransaction(tx model.Transaction) transactionDTO {
	return transactionDTO{
		ID:                tx.ID,
		Symbol:            tx.Symbol,
		Kind:              string(tx.Kind),
		Quantity:          tx.Quantity,
		RemainingQuantity: tx.RemainingQuantity,
		Fee:               utils.Round2(tx.Fee),
		PricePerShare:     tx.PricePerShare,
		TotalCost:         utils.Round2(tx.TotalCost),
		Pnl:               utils.Round2(tx.Pnl),
		TransactionDate:   tx.TransactionDate.Format(time.RFC3339),
	}
}

func convertPosition(position model.SymbolPosition) positionDTO {
	return positionDTO{
		Symbol:       position.Symbol,
		Quantity:     position.Quantity,
		LastPrice:    position.LastPrice,
		CurrentValue: position.CurrentValue,
		Pl:           position.Pl,
		Realized:     position.Realized,
		Unrealized:   position.Unrealized,
		TotalFee:     position.TotalFee,
	}
}

func convertPerformance(summary model.PerformanceSummary) performanceDTO {
	return performanceDTO{
		TotalFee:              summary.TotalFee,
		TotalRealizedProfit:   summary.TotalRealizedProfit,
		TotalRealizedLoss:     summary.TotalRealizedLoss,
		TotalUnrealizedProfit: summary.TotalUnrealizedProfit,
		TotalUnrealizedLoss:   summary.TotalUnrealizedLoss,
		TotalTransactions: map[string]int{
			"buy":  summary.TotalTransactions.Buy,
			"sell": summary.TotalTransactions.Sell,
		},
		InvestedStocks: investedStocksDTO{
			Total:         summary.InvestedSymbols.Total,
			ZeroStocks:    summary.InvestedSymbols.ZeroStocks,
			NonZeroStocks: summary.InvestedSymbols.NonZeroStocks,
		},
	}
}
