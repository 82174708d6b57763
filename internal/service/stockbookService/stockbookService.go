package stockbookService

import (
	"context"
	"errors"
	"log/slog"

	"github.com/andmosc/stockbook/data/repository"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/service"
	"github.com/andmosc/stockbook/utils"
)

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	InsertTransaction(ctx context.Context, tx model.Transaction) (id int64, err error)
	GetOpenBuyLots(ctx context.Context, userID int64, symbol string) ([]model.Transaction, error)
	UpdateRemainingQuantity(ctx context.Context, id int64, value float64) error
	UpdatePnl(ctx context.Context, id int64, value float64) error
	GetTransactions(ctx context.Context, userID int64, excludeDividends bool) ([]model.Transaction, error)
	GetTransactionsDesc(ctx context.Context, userID int64) ([]model.Transaction, error)
	GetHeldSymbols(ctx context.Context) ([]string, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, userID int64) (model.User, error)
}

type Cache interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	SetQuote(ctx context.Context, quote model.Quote) error
	SetQuotes(ctx context.Context, quotes []model.Quote) error
}

type PriceApi interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, username string, positions []model.SymbolPosition, history []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

type StockbookService struct {
	repo     Repository
	cache    Cache
	priceApi PriceApi
	reports  ReportGenerator
	storage  CloudStorage
}

func New(repo Repository, cache Cache, priceApi PriceApi, reports ReportGenerator) *StockbookService {
	return &StockbookService{
		repo:     repo,
		cache:    cache,
		priceApi: priceApi,
		reports:  reports,
	}
}

func (s *StockbookService) GetUsers(ctx context.Context) ([]model.User, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.GetUsers"

	users, err := s.repo.GetUsers(ctx)
	if err != nil {
		slog.Error("got error from repo.GetUsers", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return users, nil
}

func (s *StockbookService) GetUser(ctx context.Context, userID int64) (model.User, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.GetUser"

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("user not found", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
			return model.User{}, service.ErrNotFound
		}
		slog.Error("got error from repo.GetUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	return user, nil
}

// lastPrice resolves the current market price for a symbol: cache first, then
// the price API. Any failure degrades to 0 so a single dead symbol never
// fails a whole aggregation.
func (s *StockbookService) lastPrice(ctx context.Context, symbol string) float64 {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.lastPrice"

	quote, err := s.cache.GetQuote(ctx, symbol)
	if err == nil {
		return quote.LastPrice
	}

	quote, err = s.priceApi.GetQuote(ctx, symbol)
	if err != nil {
		slog.Warn("can't resolve price, using 0", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
		return 0
	}

	go s.cache.SetQuote(context.WithoutCancel(ctx), quote)

	return quote.LastPrice
}

// RefreshQuotes re-warms the quote cache for every symbol currently held by
// any user. Runs as a scheduled job.
func (s *StockbookService) RefreshQuotes(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.RefreshQuotes"

	slog.Debug("RefreshQuotes start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RefreshQuotes finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	symbols, err := s.repo.GetHeldSymbols(ctx)
	if err != nil {
		slog.Error("got error from repo.GetHeldSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if len(symbols) == 0 {
		return nil
	}

	quotesMap, err := s.priceApi.GetQuotes(ctx, symbols)
	if err != nil {
		slog.Error("got error from priceApi.GetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	quotes := make([]model.Quote, 0, len(quotesMap))
	for _, quote := range quotesMap {
		quotes = append(quotes, quote)
	}

	err = s.cache.SetQuotes(ctx, quotes)
	if err != nil {
		slog.Error("got error from cache.SetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}
