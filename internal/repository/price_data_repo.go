package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"quant-research/config"
	"quant-research/internal/dto"
	"quant-research/pkg/cache"
	"quant-research/pkg/httpclient"
	"quant-research/pkg/logger"
)

// PriceDataRepository fetches daily OHLCV history for one symbol. The core
// only ever sees the resulting PriceSeries; where the bars come from is this
// repository's business.
type PriceDataRepository interface {
	Get(ctx context.Context, symbol string, start, end time.Time) (*dto.PriceSeries, error)
}

type priceDataRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            *config.Config
	log            *logger.Logger
	memCache       cache.Cache
	requestLimiter *rate.Limiter
}

func NewPriceDataRepository(cfg *config.Config, memCache cache.Cache, log *logger.Logger) PriceDataRepository {
	perMinute := cfg.Data.MaxRequestPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)

	return &priceDataRepository{
		httpClient:     httpclient.New(cfg.Data.BaseURL, cfg.Data.Timeout, ""),
		cfg:            cfg,
		log:            log,
		memCache:       memCache,
		requestLimiter: limiter,
	}
}

// chartResponse mirrors the subset of the Yahoo Finance v8 chart payload the
// repository consumes.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

func (r *priceDataRepository) Get(ctx context.Context, symbol string, start, end time.Time) (*dto.PriceSeries, error) {
	cacheKey := fmt.Sprintf("prices|%s|%s|%s", symbol, start.Format(dto.DateLayout), end.Format(dto.DateLayout))
	if r.memCache != nil {
		if v, ok := r.memCache.Get(cacheKey); ok {
			if series, ok := v.(*dto.PriceSeries); ok {
				return series, nil
			}
		}
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	queryParams := map[string]string{
		"period1":        fmt.Sprintf("%d", start.Unix()),
		"period2":        fmt.Sprintf("%d", end.Unix()),
		"interval":       "1d",
		"includePrePost": "false",
		"events":         "div,split",
	}
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}

	var chart chartResponse
	resp, err := r.httpClient.Get(ctx, "/"+symbol, queryParams, headers, &chart)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price data: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.log.ErrorContext(ctx, "Price data API returned non-OK status",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("symbol", symbol),
		)
		return nil, fmt.Errorf("price data api returned status: %d", resp.StatusCode)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("price data api error: %v", chart.Chart.Error)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &dto.MissingDataError{Symbol: symbol, Field: "quote"}
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]dto.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) ||
			i >= len(quote.Close) || i >= len(quote.Volume) {
			continue
		}
		// Zero entries survive here; the series forward-fills them.
		bars = append(bars, dto.Bar{
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: quote.Volume[i],
		})
	}
	if len(bars) == 0 {
		return nil, &dto.MissingDataError{Symbol: symbol, Field: "ohlcv"}
	}

	series, err := dto.NewPriceSeries(symbol, bars)
	if err != nil {
		return nil, err
	}
	if r.memCache != nil {
		r.memCache.Set(cacheKey, series, r.cfg.Cache.DefaultExpiration)
	}
	return series, nil
}
