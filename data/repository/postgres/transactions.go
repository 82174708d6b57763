package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/andmosc/stockbook/data/repository"
	"github.com/andmosc/stockbook/internal/converter/dbConverter"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/model/dbModel"
	"github.com/andmosc/stockbook/utils"
)

func (r *Postgres) InsertTransaction(ctx context.Context, tx model.Transaction) (id int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	query := `
		INSERT INTO transactions(
			user_id, stock_symbol, transaction_type, quantity, remaining_quantity,
			fee, price_per_share, dirty_price_per_share, cost_of_shares, total_cost,
			pnl, transaction_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	slog.Debug("InsertTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", id))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(
		ctx,
		query,
		tx.UserID,
		tx.Symbol,
		string(tx.Kind),
		tx.Quantity,
		tx.RemainingQuantity,
		tx.Fee,
		tx.PricePerShare,
		tx.DirtyPricePerShare,
		tx.CostOfShares,
		tx.TotalCost,
		tx.Pnl,
		tx.TransactionDate,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetOpenBuyLots selects the user's BUY rows for a symbol that still have
// remaining quantity, in insertion order. The rows are locked for the
// duration of the ambient transaction so concurrent sells of the same symbol
// serialize their matching.
func (r *Postgres) GetOpenBuyLots(ctx context.Context, userID int64, symbol string) (lots []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetOpenBuyLots"
	query := `
		SELECT id, user_id, stock_symbol, transaction_type, quantity, remaining_quantity,
			fee, price_per_share, dirty_price_per_share, cost_of_shares, total_cost,
			pnl, transaction_date
		FROM transactions
		WHERE user_id = $1
		AND stock_symbol = $2
		AND transaction_type = 'BUY'
		AND remaining_quantity > 0
		ORDER BY id ASC
		FOR UPDATE
		`

	slog.Debug("GetOpenBuyLots start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetOpenBuyLots failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetOpenBuyLots completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("lots", len(lots)))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID, symbol)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbTx dbModel.Transaction
		err = rows.StructScan(&dbTx)
		if err != nil {
			return nil, err
		}
		lots = append(lots, dbConverter.ConvertTransaction(dbTx))
	}

	return lots, nil
}

func (r *Postgres) UpdateRemainingQuantity(ctx context.Context, id int64, value float64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdateRemainingQuantity"
	query := `
		UPDATE transactions
		SET remaining_quantity = $1
		WHERE id = $2
	`

	slog.Debug("UpdateRemainingQuantity start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", id), slog.Float64("value", value))
	defer func() {
		if err != nil {
			slog.Error("UpdateRemainingQuantity failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateRemainingQuantity completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) UpdatePnl(ctx context.Context, id int64, value float64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdatePnl"
	query := `
		UPDATE transactions
		SET pnl = $1
		WHERE id = $2
	`

	slog.Debug("UpdatePnl start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", id), slog.Float64("value", value))
	defer func() {
		if err != nil {
			slog.Error("UpdatePnl failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdatePnl completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) getTransactions(ctx context.Context, query string, args ...any) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("getTransactions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("getTransactions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("getTransactions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbTx dbModel.Transaction
		err = rows.StructScan(&dbTx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, dbConverter.ConvertTransaction(dbTx))
	}

	return txs, nil
}

// GetTransactions returns the user's full history ordered by id ascending.
// With excludeDividends set, DIVIDEND rows are filtered out (the aggregators
// operate on the non-dividend set).
func (r *Postgres) GetTransactions(ctx context.Context, userID int64, excludeDividends bool) ([]model.Transaction, error) {
	if excludeDividends {
		query := `
			SELECT id, user_id, stock_symbol, transaction_type, quantity, remaining_quantity,
				fee, price_per_share, dirty_price_per_share, cost_of_shares, total_cost,
				pnl, transaction_date
			FROM transactions
			WHERE user_id = $1
			AND transaction_type != 'DIVIDEND'
			ORDER BY id ASC
			`
		return r.getTransactions(ctx, query, userID)
	}

	query := `
		SELECT id, user_id, stock_symbol, transaction_type, quantity, remaining_quantity,
			fee, price_per_share, dirty_price_per_share, cost_of_shares, total_cost,
			pnl, transaction_date
		FROM transactions
		WHERE user_id = $1
		ORDER BY id ASC
		`
	return r.getTransactions(ctx, query, userID)
}

// GetTransactionsDesc returns the user's history newest-first for the
// statement view.
func (r *Postgres) GetTransactionsDesc(ctx context.Context, userID int64) ([]model.Transaction, error) {
	query := `
		SELECT id, user_id, stock_symbol, transaction_type, quantity, remaining_quantity,
			fee, price_per_share, dirty_price_per_share, cost_of_shares, total_cost,
			pnl, transaction_date
		FROM transactions
		WHERE user_id = $1
		ORDER BY id DESC
		`
	return r.getTransactions(ctx, query, userID)
}

// GetHeldSymbols returns every symbol with open quantity across all users,
// used by the quote cache refresh job.
func (r *Postgres) GetHeldSymbols(ctx context.Context) (symbols []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetHeldSymbols"
	query := `
		SELECT DISTINCT stock_symbol
		FROM transactions
		WHERE remaining_quantity > 0
		`

	slog.Debug("GetHeldSymbols start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHeldSymbols failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHeldSymbols completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("symbols", len(symbols)))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &symbols, query)
	if err != nil {
		return nil, err
	}

	return symbols, nil
}

func (r *Postgres) GetUsers(ctx context.Context) (users []model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUsers"
	query := `SELECT id, username FROM users ORDER BY id ASC`

	slog.Debug("GetUsers start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUsers failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUsers completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbUser dbModel.User
		err = rows.StructScan(&dbUser)
		if err != nil {
			return nil, err
		}
		users = append(users, dbConverter.ConvertUser(dbUser))
	}

	return users, nil
}

func (r *Postgres) GetUser(ctx context.Context, userID int64) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUser"
	query := `SELECT id, username FROM users WHERE id = $1`

	slog.Debug("GetUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbUser := dbModel.User{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, userID).StructScan(&dbUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, repository.ErrNotFound
		}
		return model.User{}, err
	}

	return dbConverter.ConvertUser(dbUser), nil
}
