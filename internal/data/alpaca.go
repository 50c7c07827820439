package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/sony/gobreaker"

	"wfsweep/internal/domain"
	"wfsweep/internal/store"
	"wfsweep/internal/util"
)

var _ DataProvider = (*AlpacaProvider)(nil)

// BarClient is the subset of the Alpaca market-data client the provider
// uses. *marketdata.Client satisfies it.
type BarClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

var _ BarClient = (*marketdata.Client)(nil)

// AlpacaOptions configures an AlpacaProvider.
type AlpacaOptions struct {
	Symbol          string
	Market          string
	Start           time.Time
	End             time.Time
	MinBars         int
	RateLimitPerMin int
	MaxRetries      int
	RetryDelay      time.Duration

	// Cache, when set, receives every fetched bar so later runs can use a
	// StoreProvider.
	Cache store.BarStore
}

// AlpacaProvider fetches daily bars from the Alpaca market-data API with
// rate limiting, retries and a circuit breaker.
type AlpacaProvider struct {
	client  BarClient
	opts    AlpacaOptions
	limiter *util.RateLimiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// NewAlpacaClient builds the market-data client from credentials.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})
}

// NewAlpacaProvider creates a provider. A zero Start looks back far enough
// on the trading calendar to cover MinBars with room to spare.
func NewAlpacaProvider(client BarClient, opts AlpacaOptions, log *slog.Logger) *AlpacaProvider {
	if opts.End.IsZero() {
		opts.End = time.Now().UTC()
	}
	if opts.Start.IsZero() {
		cal := util.NewTradingCalendar(opts.Market)
		opts.Start = cal.LookbackStart(opts.End, opts.MinBars*3/2)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "alpaca", "symbol", opts.Symbol)

	st := gobreaker.Settings{
		Name:        "alpaca-bars",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &AlpacaProvider{
		client:  client,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

// FullSeries implements DataProvider.
func (p *AlpacaProvider) FullSeries(ctx context.Context) (*domain.PriceSeries, error) {
	start := time.Now()
	symbol := strings.ToUpper(p.opts.Symbol)

	var raw []marketdata.Bar
	err := util.Retry(ctx, p.opts.MaxRetries, p.opts.RetryDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.client.GetBars(symbol, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     p.opts.Start,
				End:       p.opts.End,
			})
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return util.Permanent(err)
		}
		if err != nil {
			p.log.Warn("bar fetch failed", "err", err)
			return err
		}
		raw = out.([]marketdata.Bar)
		return nil
	})
	if err != nil {
		return nil, &DataUnavailableError{Source: "alpaca", Symbol: symbol, MinBars: p.opts.MinBars, Err: fmt.Errorf("GetBars: %w", err)}
	}

	bars := make([]domain.Bar, len(raw))
	for i, ab := range raw {
		bars[i] = domain.Bar{
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		}
	}
	p.log.Info("bars fetched", "bars", len(bars), "elapsed", time.Since(start).Round(time.Millisecond))

	if p.opts.Cache != nil && len(bars) > 0 {
		if err := p.opts.Cache.WriteBars(ctx, symbol, p.opts.Market, bars); err != nil {
			p.log.Warn("caching bars failed", "err", err)
		}
	}
	return buildSeries("alpaca", symbol, bars, p.opts.MinBars)
}
