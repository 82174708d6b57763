package stockbookService

import (
	"context"
	"log/slog"

	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/utils"
)

type symbolFold struct {
	quantity   float64
	realized   float64
	unrealized float64
	totalFee   float64
}

// BuildPortfolio folds the user's non-dividend history into per-symbol
// positions. Realized pnl is read back from the SELL rows (matching already
// happened at insert time); unrealized pnl is valued against the current
// market price of every row that still has open quantity.
func (s *StockbookService) BuildPortfolio(ctx context.Context, userID int64) ([]model.SymbolPosition, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.BuildPortfolio"

	slog.Debug("BuildPortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("BuildPortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	txs, err := s.repo.GetTransactions(ctx, userID, true)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	prices := make(map[string]float64)
	priceOf := func(symbol string) float64 {
		if price, ok := prices[symbol]; ok {
			return price
		}
		price := s.lastPrice(ctx, symbol)
		prices[symbol] = price
		return price
	}

	folds := make(map[string]*symbolFold)
	order := make([]string, 0)

	for _, tx := range txs {
		fold, ok := folds[tx.Symbol]
		if !ok {
			fold = &symbolFold{}
			folds[tx.Symbol] = fold
			order = append(order, tx.Symbol)
		}

		if tx.RemainingQuantity > 0 {
			var feePerShare float64
			if tx.Quantity != 0 {
				feePerShare = tx.Fee / tx.Quantity
			}
			netSharePrice := tx.PricePerShare + feePerShare
			fold.unrealized += tx.RemainingQuantity * (priceOf(tx.Symbol) - netSharePrice)
		}

		switch tx.Kind {
		case model.KindBuy:
			fold.quantity += tx.Quantity
			fold.totalFee += tx.Fee
		case model.KindSell:
			fold.quantity -= tx.Quantity
			fold.realized += tx.Pnl
			fold.totalFee += tx.Fee
		}
	}

	positions := make([]model.SymbolPosition, 0, len(order))
	for _, symbol := range order {
		fold := folds[symbol]
		lastPrice := priceOf(symbol)

		positions = append(positions, model.SymbolPosition{
			Symbol:       symbol,
			Quantity:     utils.Round5(fold.quantity),
			LastPrice:    utils.Round2(lastPrice),
			CurrentValue: utils.Round2(fold.quantity * lastPrice),
			Pl:           utils.Round2(fold.realized + fold.unrealized),
			Realized:     utils.Round2(fold.realized),
			Unrealized:   utils.Round2(fold.unrealized),
			TotalFee:     utils.Round2(fold.totalFee),
		})
	}

	return positions, nil
}

// BuildPerformance folds the same non-dividend history into portfolio-wide
// scalars. Realized and unrealized pnl are bucketed into profit/loss
// per record; a pnl of exactly zero lands on the loss side.
func (s *StockbookService) BuildPerformance(ctx context.Context, userID int64) (model.PerformanceSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.BuildPerformance"

	slog.Debug("BuildPerformance start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("BuildPerformance finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	txs, err := s.repo.GetTransactions(ctx, userID, true)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PerformanceSummary{}, err
	}

	prices := make(map[string]float64)
	priceOf := func(symbol string) float64 {
		if price, ok := prices[symbol]; ok {
			return price
		}
		price := s.lastPrice(ctx, symbol)
		prices[symbol] = price
		return price
	}

	summary := model.PerformanceSummary{}
	remainingBySymbol := make(map[string]float64)

	for _, tx := range txs {
		summary.TotalFee += tx.Fee
		remainingBySymbol[tx.Symbol] += tx.RemainingQuantity

		switch tx.Kind {
		case model.KindBuy:
			summary.TotalTransactions.Buy++
		case model.KindSell:
			summary.TotalTransactions.Sell++
		}

		if tx.Pnl > 0 {
			summary.TotalRealizedProfit += tx.Pnl
		} else {
			summary.TotalRealizedLoss += -tx.Pnl
		}

		if tx.RemainingQuantity > 0 {
			var feePerShare float64
			if tx.Quantity != 0 {
				feePerShare = tx.Fee / tx.Quantity
			}
			netSharePrice := tx.PricePerShare + feePerShare
			unrealized := tx.RemainingQuantity * (priceOf(tx.Symbol) - netSharePrice)
			if unrealized > 0 {
				summary.TotalUnrealizedProfit += unrealized
			} else {
				summary.TotalUnrealizedLoss += -unrealized
			}
		}
	}

	summary.InvestedSymbols.Total = len(remainingBySymbol)
	for _, remaining := range remainingBySymbol {
		if remaining <= model.QuantityEpsilon {
			summary.InvestedSymbols.ZeroStocks++
		} else {
			summary.InvestedSymbols.NonZeroStocks++
		}
	}

	summary.TotalFee = utils.Round2(summary.TotalFee)
	summary.TotalRealizedProfit = utils.Round2(summary.TotalRealizedProfit)
	summary.TotalRealizedLoss = utils.Round2(summary.TotalRealizedLoss)
	summary.TotalUnrealizedProfit = utils.Round2(summary.TotalUnrealizedProfit)
	summary.TotalUnrealizedLoss = utils.Round2(summary.TotalUnrealizedLoss)

	return summary, nil
}
