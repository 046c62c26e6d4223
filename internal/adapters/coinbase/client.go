// Package coinbase serves historic candles and live matches from the Coinbase Exchange API.
package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

const (
	DefaultRESTURL = "https://api.exchange.coinbase.com"
	DefaultWSURL   = "wss://ws-feed.exchange.coinbase.com"

	// maxCandles is the largest response the candles endpoint returns.
	maxCandles = 300
)

// Granularities are the candle sizes the candles endpoint accepts.
var Granularities = []int{60, 300, 900, 3600, 21600, 86400}

// Config holds configuration for the Coinbase adapter.
type Config struct {
	RESTURL           string
	WSURL             string
	RequestsPerSecond float64       // Public endpoint limit, defaults to 1
	HTTPTimeout       time.Duration // Per request, defaults to 10s
	MaxRetryElapsed   time.Duration // Retry budget for 429 and 5xx, defaults to 15s
	Logger            ports.Logger
}

// Client implements ports.HistoricFeed and creates match streams.
type Client struct {
	restURL         string
	wsURL           string
	httpClient      *http.Client
	limiter         *rate.Limiter
	maxRetryElapsed time.Duration
	logger          ports.Logger
}

// New creates a Coinbase adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Coinbase client")
	}
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 15 * time.Second
	}
	if _, err := url.Parse(cfg.RESTURL); err != nil {
		return nil, fmt.Errorf("invalid Coinbase REST URL %q: %w: %w", cfg.RESTURL, ports.ErrConfigurationError, err)
	}

	return &Client{
		restURL:         cfg.RESTURL,
		wsURL:           cfg.WSURL,
		httpClient:      &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:         rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		maxRetryElapsed: cfg.MaxRetryElapsed,
		logger:          cfg.Logger,
	}, nil
}

// ValidateGranularity implements ports.HistoricFeed.
func (c *Client) ValidateGranularity(seconds int) error {
	if !slices.Contains(Granularities, seconds) {
		return fmt.Errorf("%w: Coinbase serves %v seconds, got %d", ports.ErrUnsupportedGranularity, Granularities, seconds)
	}
	return nil
}

type errorResponse struct {
	Message string `json:"message"`
}

// Fetch implements ports.HistoricFeed. The window starts params.Candles
// granularities before params.End.
func (c *Client) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.Candle, error) {
	op := "FetchCandles"
	if err := c.ValidateGranularity(params.GranularitySeconds); err != nil {
		return nil, err
	}
	candles := params.Candles
	if candles <= 0 || candles > maxCandles {
		candles = maxCandles
	}
	end := params.End
	if end.IsZero() {
		end = time.Now()
	}
	start := end.Add(-time.Duration(candles*params.GranularitySeconds) * time.Second)

	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("granularity", strconv.Itoa(params.GranularitySeconds))
	endpoint := fmt.Sprintf("%s/products/%s/candles?%s", c.restURL, url.PathEscape(params.Product), q.Encode())

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			feedErr := statusError(resp, data)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.logger.Warn(ctx, op+": retrying", map[string]interface{}{"status": resp.StatusCode, "product": params.Product})
				return feedErr
			}
			return backoff.Permanent(feedErr)
		}
		body = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var rows [][]decimal.Decimal
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: decoding candles: %w", ports.ErrMalformedMessage, err), op)
	}
	out, err := translateRows(rows)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"product": params.Product, "granularity": params.GranularitySeconds, "count": len(out)})
	return out, nil
}

func statusError(resp *http.Response, body []byte) *ports.FeedError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	var mapped error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		mapped = ports.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		mapped = ports.ErrUnsupportedProduct
	case resp.StatusCode >= 500:
		mapped = ports.ErrFeedUnavailable
	case resp.StatusCode >= 400:
		mapped = ports.ErrInvalidRequest
	default:
		mapped = ports.ErrUnknown
	}
	return &ports.FeedError{Status: http.StatusText(resp.StatusCode), Message: er.Message, Err: mapped}
}

// handleError translates transport errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var feedErr *ports.FeedError
	var finalErr error
	switch {
	case errors.As(err, &feedErr), errors.Is(err, ports.ErrMalformedMessage):
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			if urlErr.Timeout() {
				finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
			} else {
				finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
			}
		} else {
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
		}
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// translateRows converts [time, low, high, open, close, volume] rows into ascending candles.
func translateRows(rows [][]decimal.Decimal) ([]domain.Candle, error) {
	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: candle row %d has %d fields", ports.ErrMalformedMessage, i, len(row))
		}
		candles = append(candles, domain.Candle{
			Date:   time.Unix(row[0].IntPart(), 0).UTC(),
			Low:    row[1].InexactFloat64(),
			High:   row[2].InexactFloat64(),
			Open:   row[3].InexactFloat64(),
			Close:  row[4].InexactFloat64(),
			Volume: row[5].InexactFloat64(),
		})
	}
	slices.SortStableFunc(candles, domain.CompareByDate)
	return candles, nil
}
