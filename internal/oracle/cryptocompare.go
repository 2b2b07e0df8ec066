/*
This file contains the upstream feed backed by the CryptoCompare REST API.

Each Latest call issues exactly one request for the most recent minute candle. There are no
retries inside a call: a failed read fails the oracle and the runner falls back to the next
oracle of the asset. Repeated failures open a circuit breaker so a dead upstream fails fast.
*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/sony/gobreaker"

	"github.com/elys-network/tfmm/internal/utils"
)

const (
	DefaultCryptoCompareURL = "https://min-api.cryptocompare.com/data/v2/histominute"
	cryptoCompareDecimals   = 8
	defaultHTTPTimeout      = 10 * time.Second
)

var ErrUpstream = errors.New("upstream price API error")

type CryptoCompareResponse struct {
	Response   string `json:"Response"`
	Message    string `json:"Message"`
	HasWarning bool   `json:"HasWarning"`
	Type       int    `json:"Type"`
	Data       struct {
		Aggregated bool               `json:"Aggregated"`
		TimeFrom   int64              `json:"TimeFrom"`
		TimeTo     int64              `json:"TimeTo"`
		Data       []CryptoCompareBar `json:"Data"`
	} `json:"Data"`
}

type CryptoCompareBar struct {
	Time       int64   `json:"time"`
	Close      float64 `json:"close"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Open       float64 `json:"open"`
	VolumeFrom float64 `json:"volumefrom"`
	VolumeTo   float64 `json:"volumeto"`
}

// HTTPFeedConfig configures one CryptoCompare symbol pair.
type HTTPFeedConfig struct {
	BaseURL string
	APIKey  string
	Symbol  string
	Quote   string
	Client  *http.Client

	// consecutive failures before the breaker opens and how long it stays open
	MaxFailures  uint32
	OpenDuration time.Duration
}

// HTTPFeed is a Feed reading the latest close price of a symbol pair.
type HTTPFeed struct {
	baseURL string
	apiKey  string
	symbol  string
	quote   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPFeed(cfg HTTPFeedConfig) (*HTTPFeed, error) {
	symbol := strings.TrimSpace(strings.ToUpper(cfg.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidOracle)
	}
	quote := strings.TrimSpace(strings.ToUpper(cfg.Quote))
	if quote == "" {
		quote = "USD"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCryptoCompareURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openDuration := cfg.OpenDuration
	if openDuration == 0 {
		openDuration = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "cryptocompare-" + symbol + "-" + quote,
		MaxRequests: 1,
		Timeout:     openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			oracleLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Price feed circuit breaker changed state")
		},
	}

	return &HTTPFeed{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		symbol:  symbol,
		quote:   quote,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}, nil
}

func (f *HTTPFeed) Latest(ctx context.Context) (sdkmath.Int, uint8, int64, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchLatestBar(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return sdkmath.Int{}, 0, 0, fmt.Errorf("%w: %s/%s: %v", ErrNoData, f.symbol, f.quote, err)
		}
		return sdkmath.Int{}, 0, 0, err
	}
	bar := result.(CryptoCompareBar)

	answer, err := utils.Float64ToSDKInt(bar.Close, cryptoCompareDecimals)
	if err != nil {
		return sdkmath.Int{}, 0, 0, fmt.Errorf("%w: close price for %s: %v", ErrNoData, f.symbol, err)
	}
	return answer, cryptoCompareDecimals, bar.Time, nil
}

func (f *HTTPFeed) requestURL() string {
	q := url.Values{}
	q.Set("fsym", f.symbol)
	q.Set("tsym", f.quote)
	q.Set("limit", "1")
	if f.apiKey != "" {
		q.Set("api_key", f.apiKey)
	}
	return f.baseURL + "?" + q.Encode()
}

func (f *HTTPFeed) fetchLatestBar(ctx context.Context) (CryptoCompareBar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(), nil)
	if err != nil {
		return CryptoCompareBar{}, fmt.Errorf("building request for %s: %w", f.symbol, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		oracleLogger.Warn().Err(err).Str("symbol", f.symbol).Msg("HTTP request failed")
		return CryptoCompareBar{}, fmt.Errorf("%w: request for %s: %v", ErrUpstream, f.symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		oracleLogger.Error().
			Str("symbol", f.symbol).
			Int("statusCode", resp.StatusCode).
			Msg("API returned non-200 status")
		return CryptoCompareBar{}, fmt.Errorf("%w: status %d for %s", ErrUpstream, resp.StatusCode, f.symbol)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CryptoCompareBar{}, fmt.Errorf("%w: reading body for %s: %v", ErrUpstream, f.symbol, err)
	}

	var parsed CryptoCompareResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		oracleLogger.Error().Err(err).Str("symbol", f.symbol).Msg("Failed to parse JSON response")
		return CryptoCompareBar{}, fmt.Errorf("%w: parsing response for %s: %v", ErrUpstream, f.symbol, err)
	}
	if parsed.Response != "Success" {
		return CryptoCompareBar{}, fmt.Errorf("%w: %s: %s - %s", ErrUpstream, f.symbol, parsed.Response, parsed.Message)
	}
	if parsed.HasWarning {
		oracleLogger.Warn().
			Str("symbol", f.symbol).
			Str("message", parsed.Message).
			Msg("API returned warning but has data - continuing")
	}

	bars := parsed.Data.Data
	if len(bars) == 0 {
		return CryptoCompareBar{}, fmt.Errorf("%w: no candles for %s", ErrNoData, f.symbol)
	}
	latest := bars[len(bars)-1]
	if err := validateBar(latest); err != nil {
		return CryptoCompareBar{}, fmt.Errorf("%w: %s: %v", ErrNoData, f.symbol, err)
	}

	oracleLogger.Debug().
		Str("symbol", f.symbol).
		Int64("time", latest.Time).
		Float64("close", latest.Close).
		Msg("Fetched latest candle")
	return latest, nil
}

// validateBar rejects candles that cannot be a real price.
func validateBar(bar CryptoCompareBar) error {
	if bar.Time <= 0 {
		return fmt.Errorf("invalid timestamp %d", bar.Time)
	}
	for _, p := range []struct {
		value float64
		name  string
	}{{bar.Close, "close"}, {bar.High, "high"}, {bar.Low, "low"}} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%s price is not finite", p.name)
		}
		if p.value <= 0 {
			return fmt.Errorf("%s price must be positive: %f", p.name, p.value)
		}
	}
	if bar.High < bar.Low {
		return fmt.Errorf("high price (%f) cannot be less than low price (%f)", bar.High, bar.Low)
	}
	if bar.Close < bar.Low || bar.Close > bar.High {
		return fmt.Errorf("close price (%f) must be between low (%f) and high (%f)", bar.Close, bar.Low, bar.High)
	}
	return nil
}
