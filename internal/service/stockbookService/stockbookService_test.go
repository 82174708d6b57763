package stockbookService

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/andmosc/stockbook/data/repository"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

// fakeRepo is an in-memory Repository. WithinTransaction runs the function
// directly, so matching behaves exactly as against a database but without
// locking.
type fakeRepo struct {
	txs    []model.Transaction
	users  []model.User
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  []model.User{{ID: 1, Username: "User1"}, {ID: 2, Username: "User2"}},
		nextID: 1,
	}
}

func (r *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (r *fakeRepo) InsertTransaction(_ context.Context, tx model.Transaction) (int64, error) {
	tx.ID = r.nextID
	r.nextID++
	r.txs = append(r.txs, tx)
	return tx.ID, nil
}

func (r *fakeRepo) GetOpenBuyLots(_ context.Context, userID int64, symbol string) ([]model.Transaction, error) {
	lots := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.UserID == userID && tx.Symbol == symbol && tx.Kind == model.KindBuy && tx.RemainingQuantity > 0 {
			lots = append(lots, tx)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots, nil
}

func (r *fakeRepo) UpdateRemainingQuantity(_ context.Context, id int64, value float64) error {
	for i := range r.txs {
		if r.txs[i].ID == id {
			r.txs[i].RemainingQuantity = value
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRepo) UpdatePnl(_ context.Context, id int64, value float64) error {
	for i := range r.txs {
		if r.txs[i].ID == id {
			r.txs[i].Pnl = value
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRepo) GetTransactions(_ context.Context, userID int64, excludeDividends bool) ([]model.Transaction, error) {
	txs := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.UserID != userID {
			continue
		}
		if excludeDividends && tx.Kind == model.KindDividend {
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs, nil
}

func (r *fakeRepo) GetTransactionsDesc(ctx context.Context, userID int64) ([]model.Transaction, error) {
	txs, _ := r.GetTransactions(ctx, userID, false)
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID > txs[j].ID })
	return txs, nil
}

func (r *fakeRepo) GetHeldSymbols(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	symbols := make([]string, 0)
	for _, tx := range r.txs {
		if tx.RemainingQuantity <= 0 {
			continue
		}
		if _, ok := seen[tx.Symbol]; !ok {
			seen[tx.Symbol] = struct{}{}
			symbols = append(symbols, tx.Symbol)
		}
	}
	return symbols, nil
}

func (r *fakeRepo) GetUsers(_ context.Context) ([]model.User, error) {
	return r.users, nil
}

func (r *fakeRepo) GetUser(_ context.Context, userID int64) (model.User, error) {
	for _, user := range r.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

// byID fetches a stored transaction for assertions.
func (r *fakeRepo) byID(t *testing.T, id int64) model.Transaction {
	t.Helper()
	for _, tx := range r.txs {
		if tx.ID == id {
			return tx
		}
	}
	t.Fatalf("transaction %d not found", id)
	return model.Transaction{}
}

type fakeCache struct {
	quotes map[string]model.Quote
}

func newFakeCache() *fakeCache {
	return &fakeCache{quotes: make(map[string]model.Quote)}
}

func (c *fakeCache) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	if quote, ok := c.quotes[symbol]; ok {
		return quote, nil
	}
	return model.Quote{}, errors.New("cache miss")
}

func (c *fakeCache) SetQuote(_ context.Context, quote model.Quote) error {
	c.quotes[quote.Symbol] = quote
	return nil
}

func (c *fakeCache) SetQuotes(ctx context.Context, quotes []model.Quote) error {
	for _, quote := range quotes {
		_ = c.SetQuote(ctx, quote)
	}
	return nil
}

type fakePriceApi struct {
	prices map[string]float64
}

func (a *fakePriceApi) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	if price, ok := a.prices[symbol]; ok {
		return model.Quote{Symbol: symbol, LastPrice: price}, nil
	}
	return model.Quote{}, errors.New("quote unavailable")
}

func (a *fakePriceApi) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	quotes := make(map[string]model.Quote)
	for _, symbol := range symbols {
		if quote, err := a.GetQuote(ctx, symbol); err == nil {
			quotes[symbol] = quote
		}
	}
	return quotes, nil
}

type fakeReportGenerator struct{}

func (g *fakeReportGenerator) Generate(_ context.Context, _ string, _ []model.SymbolPosition, _ []model.Transaction) ([]byte, string, error) {
	return []byte("workbook"), ".xlsx", nil
}

func newTestService(prices map[string]float64) (*StockbookService, *fakeRepo) {
	repo := newFakeRepo()
	srv := New(repo, newFakeCache(), &fakePriceApi{prices: prices}, &fakeReportGenerator{})
	return srv, repo
}

func mustAdd(t *testing.T, srv *StockbookService, tx model.Transaction) model.Transaction {
	t.Helper()
	saved, err := srv.AddTransaction(context.Background(), tx)
	require.NoError(t, err)
	return saved
}

func buy(userID int64, symbol string, qty, price, fee float64) model.Transaction {
	return model.Transaction{
		UserID: userID, Symbol: symbol, Kind: model.KindBuy,
		Quantity: qty, PricePerShare: price, Fee: fee,
		TransactionDate: time.Now(),
	}
}

func sell(userID int64, symbol string, qty, price, fee float64) model.Transaction {
	return model.Transaction{
		UserID: userID, Symbol: symbol, Kind: model.KindSell,
		Quantity: qty, PricePerShare: price, Fee: fee,
		TransactionDate: time.Now(),
	}
}

// --- Lot matching ---

func TestAddTransaction_SellMatchesSingleLot(t *testing.T) {
	srv, repo := newTestService(nil)

	lot := mustAdd(t, srv, buy(1, "AAPL", 10, 10, 1))
	sale := mustAdd(t, srv, sell(1, "AAPL", 10, 15, 1))

	// 10 x ((15 - 0.10) - (10 + 0.10)) = 48.00
	assert.InDelta(t, 48.00, sale.Pnl, 1e-9)
	assert.InDelta(t, 0, repo.byID(t, lot.ID).RemainingQuantity, 1e-9)
	assert.InDelta(t, 48.00, repo.byID(t, sale.ID).Pnl, 1e-9)
}

func TestAddTransaction_SellSpansTwoLots(t *testing.T) {
	srv, repo := newTestService(nil)

	lot1 := mustAdd(t, srv, buy(1, "AAPL", 5, 10, 0))
	lot2 := mustAdd(t, srv, buy(1, "AAPL", 5, 20, 0))
	sale := mustAdd(t, srv, sell(1, "AAPL", 8, 25, 0))

	// lot1: 5 x (25-10) = 75, lot2: 3 x (25-20) = 15
	assert.InDelta(t, 90, sale.Pnl, 1e-9)
	assert.InDelta(t, 0, repo.byID(t, lot1.ID).RemainingQuantity, 1e-9)
	assert.InDelta(t, 2, repo.byID(t, lot2.ID).RemainingQuantity, 1e-9)
}

func TestAddTransaction_OversellTruncatesSilently(t *testing.T) {
	srv, repo := newTestService(nil)

	lot := mustAdd(t, srv, buy(1, "AAPL", 5, 10, 0))
	sale, err := srv.AddTransaction(context.Background(), sell(1, "AAPL", 8, 20, 0))

	// only 5 of the 8 units match; the remainder realizes nothing and is
	// not an error
	require.NoError(t, err)
	assert.InDelta(t, 50, sale.Pnl, 1e-9)
	assert.InDelta(t, 0, repo.byID(t, lot.ID).RemainingQuantity, 1e-9)
}

func TestAddTransaction_FifoOrderIsByIDNotDate(t *testing.T) {
	srv, repo := newTestService(nil)

	older := buy(1, "AAPL", 5, 10, 0)
	older.TransactionDate = time.Now()
	newer := buy(1, "AAPL", 5, 20, 0)
	newer.TransactionDate = time.Now().Add(-48 * time.Hour)

	lot1 := mustAdd(t, srv, older)
	lot2 := mustAdd(t, srv, newer)
	sale := mustAdd(t, srv, sell(1, "AAPL", 5, 30, 0))

	// lot1 was inserted first so it is consumed first even though its
	// transaction date is later
	assert.InDelta(t, 100, sale.Pnl, 1e-9)
	assert.InDelta(t, 0, repo.byID(t, lot1.ID).RemainingQuantity, 1e-9)
	assert.InDelta(t, 5, repo.byID(t, lot2.ID).RemainingQuantity, 1e-9)
}

func TestAddTransaction_BuyFeeSpreadOverCurrentRemaining(t *testing.T) {
	srv, _ := newTestService(nil)

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 10))

	// first sell: fee/share = 10/10 = 1
	sale1 := mustAdd(t, srv, sell(1, "AAPL", 5, 20, 0))
	assert.InDelta(t, 5*(20-11), sale1.Pnl, 1e-9)

	// second sell: the same lot fee now spreads over the 5 shares left,
	// fee/share = 10/5 = 2
	sale2 := mustAdd(t, srv, sell(1, "AAPL", 5, 20, 0))
	assert.InDelta(t, 5*(20-12), sale2.Pnl, 1e-9)
}

func TestAddTransaction_SellLeavesOtherUserAndSymbolAlone(t *testing.T) {
	srv, repo := newTestService(nil)

	otherUser := mustAdd(t, srv, buy(2, "AAPL", 5, 10, 0))
	otherSymbol := mustAdd(t, srv, buy(1, "MSFT", 5, 10, 0))
	lot := mustAdd(t, srv, buy(1, "AAPL", 5, 10, 0))

	mustAdd(t, srv, sell(1, "AAPL", 5, 20, 0))

	assert.InDelta(t, 5, repo.byID(t, otherUser.ID).RemainingQuantity, 1e-9)
	assert.InDelta(t, 5, repo.byID(t, otherSymbol.ID).RemainingQuantity, 1e-9)
	assert.InDelta(t, 0, repo.byID(t, lot.ID).RemainingQuantity, 1e-9)
}

func TestAddTransaction_SupplyConservation(t *testing.T) {
	srv, repo := newTestService(nil)

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 0))
	mustAdd(t, srv, buy(1, "AAPL", 7, 12, 0))
	mustAdd(t, srv, sell(1, "AAPL", 4, 15, 0))
	mustAdd(t, srv, sell(1, "AAPL", 6, 15, 0))

	var remaining float64
	for _, tx := range repo.txs {
		if tx.Kind == model.KindBuy {
			remaining += tx.RemainingQuantity
		}
	}

	// 17 bought, 10 sold
	assert.InDelta(t, 7, remaining, 1e-9)
}

func TestAddTransaction_Dividend(t *testing.T) {
	srv, repo := newTestService(nil)

	dividend := mustAdd(t, srv, model.Transaction{
		UserID: 1, Symbol: "AAPL", Kind: model.KindDividend,
		Pnl:             12.34,
		TransactionDate: time.Now(),
	})

	stored := repo.byID(t, dividend.ID)
	assert.InDelta(t, 1, stored.Quantity, 1e-9)
	assert.InDelta(t, 0, stored.PricePerShare, 1e-9)
	assert.InDelta(t, 0, stored.RemainingQuantity, 1e-9)
	assert.InDelta(t, 12.34, stored.Pnl, 1e-9)
}

func TestAddTransaction_BuyNeverCarriesPnl(t *testing.T) {
	srv, repo := newTestService(nil)

	tx := buy(1, "AAPL", 10, 10, 0)
	tx.Pnl = 999

	saved := mustAdd(t, srv, tx)
	assert.InDelta(t, 0, repo.byID(t, saved.ID).Pnl, 1e-9)
}

func TestAddTransaction_Invalid(t *testing.T) {
	srv, _ := newTestService(nil)

	cases := []model.Transaction{
		{UserID: 1, Symbol: "", Kind: model.KindBuy, Quantity: 1},
		{UserID: 1, Symbol: "AAPL", Kind: model.KindBuy, Quantity: -1},
		{UserID: 1, Symbol: "AAPL", Kind: model.KindBuy, Quantity: 1, Fee: -1},
		{UserID: 1, Symbol: "AAPL", Kind: "SHORT", Quantity: 1},
	}

	for _, tx := range cases {
		_, err := srv.AddTransaction(context.Background(), tx)
		assert.ErrorIs(t, err, service.ErrInvalidTransaction)
	}
}

func TestAddTransaction_UnknownUser(t *testing.T) {
	srv, _ := newTestService(nil)

	_, err := srv.AddTransaction(context.Background(), buy(42, "AAPL", 1, 10, 0))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// --- Portfolio aggregation ---

func TestBuildPortfolio(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 15})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 0))
	mustAdd(t, srv, sell(1, "AAPL", 4, 12, 0))

	positions, err := srv.BuildPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	position := positions[0]
	assert.Equal(t, "AAPL", position.Symbol)
	assert.InDelta(t, 6, position.Quantity, 1e-9)
	assert.InDelta(t, 15, position.LastPrice, 1e-9)
	assert.InDelta(t, 90, position.CurrentValue, 1e-9)
	assert.InDelta(t, 8, position.Realized, 1e-9)
	// 6 open shares at cost 10 against price 15
	assert.InDelta(t, 30, position.Unrealized, 1e-9)
	assert.InDelta(t, 38, position.Pl, 1e-9)
}

func TestBuildPortfolio_ExcludesDividends(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 15})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 0))
	mustAdd(t, srv, model.Transaction{
		UserID: 1, Symbol: "AAPL", Kind: model.KindDividend,
		Pnl: 12.34, TransactionDate: time.Now(),
	})

	positions, err := srv.BuildPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	// the dividend touches neither quantity nor realized pnl
	assert.InDelta(t, 10, positions[0].Quantity, 1e-9)
	assert.InDelta(t, 0, positions[0].Realized, 1e-9)
}

func TestBuildPortfolio_PriceFailureDegradesToZero(t *testing.T) {
	srv, _ := newTestService(nil)

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 0))

	positions, err := srv.BuildPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.InDelta(t, 0, positions[0].LastPrice, 1e-9)
	assert.InDelta(t, 0, positions[0].CurrentValue, 1e-9)
	assert.InDelta(t, -100, positions[0].Unrealized, 1e-9)
}

func TestBuildPortfolio_FeesAccumulatePerSymbol(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 10})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 2))
	mustAdd(t, srv, sell(1, "AAPL", 5, 10, 3))

	positions, err := srv.BuildPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 5, positions[0].TotalFee, 1e-9)
}

// --- Performance aggregation ---

func TestBuildPerformance(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 15, "MSFT": 5})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 1))
	mustAdd(t, srv, sell(1, "AAPL", 4, 12, 0)) // pnl 4 x (12 - 10.10) = 7.60
	mustAdd(t, srv, buy(1, "MSFT", 10, 10, 0))
	mustAdd(t, srv, sell(1, "MSFT", 10, 8, 0)) // pnl -20

	summary, err := srv.BuildPerformance(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalTransactions.Buy)
	assert.Equal(t, 2, summary.TotalTransactions.Sell)
	assert.InDelta(t, 1, summary.TotalFee, 1e-9)
	assert.InDelta(t, 7.60, summary.TotalRealizedProfit, 1e-9)
	assert.InDelta(t, 20, summary.TotalRealizedLoss, 1e-9)
	// AAPL: 6 open shares, cost/share 10.10, price 15 -> +29.40
	assert.InDelta(t, 29.40, summary.TotalUnrealizedProfit, 1e-9)
	assert.InDelta(t, 0, summary.TotalUnrealizedLoss, 1e-9)

	assert.Equal(t, 2, summary.InvestedSymbols.Total)
	assert.Equal(t, 1, summary.InvestedSymbols.ZeroStocks)
	assert.Equal(t, 1, summary.InvestedSymbols.NonZeroStocks)
}

func TestBuildPerformance_ZeroPnlLandsOnLossSide(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 10})

	mustAdd(t, srv, buy(1, "AAPL", 5, 10, 0))
	mustAdd(t, srv, sell(1, "AAPL", 5, 10, 0))

	summary, err := srv.BuildPerformance(context.Background(), 1)
	require.NoError(t, err)

	assert.InDelta(t, 0, summary.TotalRealizedProfit, 1e-9)
	assert.InDelta(t, 0, summary.TotalRealizedLoss, 1e-9)
}

func TestBuildPerformance_Idempotent(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 15})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 1))
	mustAdd(t, srv, sell(1, "AAPL", 4, 12, 1))

	first, err := srv.BuildPerformance(context.Background(), 1)
	require.NoError(t, err)
	second, err := srv.BuildPerformance(context.Background(), 1)
	require.NoError(t, err)

	// aggregation reads, never writes
	assert.Equal(t, first, second)
}

// --- Quote refresh job ---

func TestRefreshQuotes(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	srv := New(repo, cache, &fakePriceApi{prices: map[string]float64{"AAPL": 15}}, &fakeReportGenerator{})

	_, err := srv.AddTransaction(context.Background(), buy(1, "AAPL", 10, 10, 0))
	require.NoError(t, err)

	require.NoError(t, srv.RefreshQuotes(context.Background()))

	quote, err := cache.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 15, quote.LastPrice, 1e-9)
}

// --- Statement import ---

func TestImportStatement(t *testing.T) {
	srv, repo := newTestService(nil)

	statement := "Date,Ticker,Type,Quantity,Price per share,Total Amount\n" +
		"2024-01-02T10:00:00Z,AAPL,BUY - MARKET,10,$10.00,$101.00\n" +
		"2024-02-02T10:00:00Z,AAPL,SELL - LIMIT,5,$20.00,$100.00\n" +
		"2024-03-02T10:00:00Z,AAPL,DIVIDEND,,,$12.34\n" +
		"2024-04-02T10:00:00Z,,CUSTODY FEE,,,$1.00\n"

	result, err := srv.ImportStatement(context.Background(), 1, strings.NewReader(statement))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	// the imported sell went through lot matching like a manual one
	sale := repo.byID(t, 2)
	require.Equal(t, model.KindSell, sale.Kind)
	assert.Greater(t, sale.Pnl, 0.0)
}

func TestExportReport(t *testing.T) {
	srv, _ := newTestService(map[string]float64{"AAPL": 15})

	mustAdd(t, srv, buy(1, "AAPL", 10, 10, 0))

	report, err := srv.ExportReport(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []byte("workbook"), report.FileBytes)
	assert.Contains(t, report.Filename, "User1")
	assert.Contains(t, report.Filename, ".xlsx")
	assert.Empty(t, report.DownloadLink)
}
