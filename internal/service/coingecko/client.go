package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/cache"
	xhttp "github.com/Zentex1337/crypto-tracker-api/pkg/http"
)

const marketsCacheKey = "coingecko:markets"

// Client implements a PriceSource backed by the CoinGecko markets API.
// A BytesCache in front absorbs bursty FetchOne calls between cycles.
type Client struct {
	http     *xhttp.Client
	baseURL  string
	apiKey   string
	currency string
	symbols  []string
	cache    cache.BytesCache
	cacheTTL time.Duration
}

// New creates a new CoinGecko PriceSource for the given coin ids.
func New(baseURL, apiKey, currency string, symbols []string, c cache.BytesCache, cacheTTL time.Duration, timeout time.Duration) repository.PriceSource {
	if currency == "" {
		currency = "usd"
	}
	return &Client{
		http:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		currency: currency,
		symbols:  symbols,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

type cgMarket struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	CurrentPrice float64   `json:"current_price"`
	Change24h    float64   `json:"price_change_24h"`
	ChangePct24h float64   `json:"price_change_percentage_24h"`
	TotalVolume  float64   `json:"total_volume"`
	MarketCap    float64   `json:"market_cap"`
	LastUpdated  time.Time `json:"last_updated"`
}

// FetchAll returns snapshots for every configured symbol.
func (c *Client) FetchAll(ctx context.Context) ([]*models.PriceSnapshot, error) {
	if c.cache != nil {
		if b, ok, err := c.cache.GetBytes(marketsCacheKey); err == nil && ok {
			var snaps []*models.PriceSnapshot
			if err := json.Unmarshal(b, &snaps); err == nil {
				return snaps, nil
			}
		}
	}

	opts := &xhttp.RequestOptions{
		URL: c.baseURL + "/coins/markets",
		QueryParams: map[string][]string{
			"vs_currency": {c.currency},
			"ids":         {strings.Join(c.symbols, ",")},
			"per_page":    {fmt.Sprintf("%d", len(c.symbols))},
		},
	}
	if c.apiKey != "" {
		opts.Headers = map[string]string{"x-cg-pro-api-key": c.apiKey}
	}

	var markets []cgMarket
	if err := c.http.SendAndParse(ctx, opts, &markets); err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}

	snaps := make([]*models.PriceSnapshot, 0, len(markets))
	for _, m := range markets {
		snaps = append(snaps, &models.PriceSnapshot{
			Symbol:       m.ID,
			Price:        m.CurrentPrice,
			Change24h:    m.Change24h,
			ChangePct24h: m.ChangePct24h,
			Volume24h:    m.TotalVolume,
			MarketCap:    m.MarketCap,
			LastUpdated:  m.LastUpdated,
		})
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if b, err := json.Marshal(snaps); err == nil {
			_ = c.cache.SetBytes(marketsCacheKey, b, c.cacheTTL)
		}
	}

	return snaps, nil
}

// FetchOne returns the snapshot for a single symbol.
func (c *Client) FetchOne(ctx context.Context, symbol string) (*models.PriceSnapshot, error) {
	snaps, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range snaps {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return nil, models.ErrSymbolNotFound
}
