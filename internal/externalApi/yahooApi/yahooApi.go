package yahooApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/andmosc/stockbook/config"
	"github.com/andmosc/stockbook/internal/externalApi"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/utils"
	"github.com/go-resty/resty/v2"
)

type YahooApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *YahooApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.YahooApi.Url).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; stockbook/1.0)")
	return &YahooApi{client: client}
}

type rawChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				ShortName          string  `json:"shortName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote fetches the latest market price for a symbol from the chart
// endpoint. A symbol unknown to the exchange maps to externalApi.ErrNotFound.
func (a *YahooApi) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := fmt.Sprintf("/v8/finance/chart/%s", symbol)
	params := map[string]string{
		"range":    "1d",
		"interval": "1m",
	}

	slog.Debug("start YahooApi.GetQuote request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)

	if err != nil {
		slog.Error("error while dialing YahooApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		slog.Warn("symbol not found in YahooApi", slog.String("rqID", rqID), slog.String("symbol", symbol))
		return model.Quote{}, externalApi.ErrNotFound
	}

	rawResp := rawChartResponse{}
	err = json.Unmarshal(resp.Body(), &rawResp)
	if err != nil {
		slog.Error("can't unmarshall response into rawChartResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	quote, err := a.parseRawChartResponse(symbol, rawResp)
	if err != nil {
		slog.Error("can't parse raw chart data", slog.String("err", err.Error()), slog.String("rqID", rqID), slog.String("symbol", symbol))
		return model.Quote{}, err
	}

	slog.Debug("YahooApi.GetQuote request complete", slog.String("rqID", rqID))

	return quote, nil
}

// GetQuotes fetches quotes for several symbols. Symbols that fail resolve are
// skipped, not fatal: the caller decides how to degrade.
func (a *YahooApi) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	quotes := make(map[string]model.Quote, len(symbols))

	for _, symbol := range symbols {
		quote, err := a.GetQuote(ctx, symbol)
		if err != nil {
			slog.Warn("skipping symbol in GetQuotes", slog.String("symbol", symbol), slog.String("err", err.Error()))
			continue
		}
		quotes[symbol] = quote
	}

	return quotes, nil
}

func (a *YahooApi) parseRawChartResponse(symbol string, rawResp rawChartResponse) (model.Quote, error) {
	if rawResp.Chart.Error != nil {
		if rawResp.Chart.Error.Code == "Not Found" {
			return model.Quote{}, externalApi.ErrNotFound
		}
		return model.Quote{}, fmt.Errorf("chart error %s: %s", rawResp.Chart.Error.Code, rawResp.Chart.Error.Description)
	}

	if len(rawResp.Chart.Result) == 0 {
		return model.Quote{}, externalApi.ErrNotFound
	}

	meta := rawResp.Chart.Result[0].Meta
	if meta.Symbol != "" && meta.Symbol != symbol {
		return model.Quote{}, fmt.Errorf("symbol mismatch: requested %s, got %s", symbol, meta.Symbol)
	}

	return model.Quote{
		Symbol:    symbol,
		LastPrice: meta.RegularMarketPrice,
		Currency:  meta.Currency,
		ShortName: meta.ShortName,
	}, nil
}
