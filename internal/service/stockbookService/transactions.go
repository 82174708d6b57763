package stockbookService

import (
	"context"
	"io"
	"log/slog"

	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/service"
	"github.com/andmosc/stockbook/internal/statement/revolutParser"
	"github.com/andmosc/stockbook/utils"
)

// AddTransaction appends a transaction to the user's ledger. For a SELL it
// also runs FIFO lot matching inside the same store transaction: open BUY
// lots are consumed oldest-id-first, their remaining quantities are reduced,
// and the realized pnl is written once onto the SELL row.
func (s *StockbookService) AddTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.AddTransaction"

	slog.Debug("AddTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", tx.Symbol), slog.String("kind", string(tx.Kind)))
	defer func() {
		slog.Debug("AddTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", tx.Symbol))
	}()

	if err := normalizeTransaction(&tx); err != nil {
		slog.Warn("invalid transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Transaction{}, err
	}

	if _, err := s.GetUser(ctx, tx.UserID); err != nil {
		return model.Transaction{}, err
	}

	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		id, err := s.repo.InsertTransaction(ctx, tx)
		if err != nil {
			slog.Error("got error from repo.InsertTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return err
		}
		tx.ID = id

		if tx.Kind == model.KindSell {
			totalPnl, err := s.matchSell(ctx, tx)
			if err != nil {
				return err
			}

			err = s.repo.UpdatePnl(ctx, tx.ID, totalPnl)
			if err != nil {
				slog.Error("got error from repo.UpdatePnl", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
				return err
			}
			tx.Pnl = totalPnl
		}

		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}

	return tx, nil
}

// matchSell walks the user's open BUY lots for the symbol in id order and
// deducts the sold quantity, accumulating per-lot realized pnl. The buy fee
// is spread over the lot's quantity still outstanding at match time, the sell
// fee over the full sell quantity. If the lots run out first the remainder is
// left unmatched and realizes nothing.
func (s *StockbookService) matchSell(ctx context.Context, sell model.Transaction) (totalPnl float64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.matchSell"

	lots, err := s.repo.GetOpenBuyLots(ctx, sell.UserID, sell.Symbol)
	if err != nil {
		slog.Error("got error from repo.GetOpenBuyLots", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	qtyToSell := sell.Quantity

	var sellFeePerShare float64
	if sell.Quantity != 0 {
		sellFeePerShare = sell.Fee / sell.Quantity
	}

	for _, lot := range lots {
		if qtyToSell <= model.QuantityEpsilon {
			break
		}

		remaining := lot.RemainingQuantity
		deduct := min(remaining, qtyToSell)

		err = s.repo.UpdateRemainingQuantity(ctx, lot.ID, remaining-deduct)
		if err != nil {
			slog.Error("got error from repo.UpdateRemainingQuantity", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return 0, err
		}

		var buyFeePerShare float64
		if remaining != 0 {
			buyFeePerShare = lot.Fee / remaining
		}

		lotPnl := deduct * ((sell.PricePerShare - sellFeePerShare) - (lot.PricePerShare + buyFeePerShare))
		totalPnl += lotPnl

		qtyToSell -= deduct
	}

	if qtyToSell > model.QuantityEpsilon {
		slog.Warn(
			"sell quantity exceeds open lots, remainder left unmatched",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.String("symbol", sell.Symbol),
			slog.Float64("unmatched", qtyToSell),
		)
	}

	return totalPnl, nil
}

func normalizeTransaction(tx *model.Transaction) error {
	if tx.Symbol == "" || tx.Quantity < 0 || tx.Fee < 0 {
		return service.ErrInvalidTransaction
	}

	switch tx.Kind {
	case model.KindBuy:
		tx.RemainingQuantity = tx.Quantity
		tx.Pnl = 0
	case model.KindSell:
		tx.RemainingQuantity = 0
		tx.Pnl = 0
	case model.KindDividend:
		// dividends carry the received amount in pnl and stay out of
		// quantity math
		if tx.Quantity == 0 {
			tx.Quantity = 1
		}
		tx.RemainingQuantity = 0
		tx.PricePerShare = 0
	default:
		return service.ErrInvalidTransaction
	}

	tx.FillDerived()

	return nil
}

// GetTransactions returns the user's statement, newest entries first.
func (s *StockbookService) GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.GetTransactions"

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetTransactions finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	txs, err := s.repo.GetTransactionsDesc(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTransactionsDesc", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return txs, nil
}

type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportStatement parses a Revolut CSV statement and feeds every resolved row
// through the same AddTransaction path as manual entry. Malformed rows are
// skipped with a diagnostic, never partially applied.
func (s *StockbookService) ImportStatement(ctx context.Context, userID int64, r io.Reader) (ImportResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.ImportStatement"

	slog.Debug("ImportStatement start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ImportStatement finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	candidates, skipped, err := revolutParser.Parse(r)
	if err != nil {
		slog.Error("got error from revolutParser.Parse", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return ImportResult{}, err
	}

	for _, diag := range skipped {
		slog.Warn("skipped statement row", slog.String("rqID", rqID), slog.String("op", op), slog.String("reason", diag))
	}

	result := ImportResult{Skipped: len(skipped)}
	for _, tx := range candidates {
		tx.UserID = userID
		if _, err := s.AddTransaction(ctx, tx); err != nil {
			slog.Error("got error from AddTransaction during import", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return result, err
		}
		result.Imported++
	}

	return result, nil
}
