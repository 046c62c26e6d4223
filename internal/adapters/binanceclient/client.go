package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxKlinesLimit is the largest page the klines endpoint returns.
	maxKlinesLimit = 1500
)

// intervals maps candle granularities in seconds to Binance kline intervals.
var intervals = map[int]string{
	60:     "1m",
	180:    "3m",
	300:    "5m",
	900:    "15m",
	1800:   "30m",
	3600:   "1h",
	7200:   "2h",
	14400:  "4h",
	21600:  "6h",
	28800:  "8h",
	43200:  "12h",
	86400:  "1d",
	259200: "3d",
	604800: "1w",
}

// Interval returns the Binance kline interval for a granularity.
func Interval(granularitySeconds int) (string, bool) {
	iv, ok := intervals[granularitySeconds]
	return iv, ok
}

// Granularities returns the supported granularities in ascending order.
func Granularities() []int {
	out := make([]int, 0, len(intervals))
	for g := range intervals {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

// Client implements ports.HistoricFeed over Binance USDⓈ-M futures klines and
// creates aggregated-trade streams.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	serve                serveFunc
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	BaseURL              string // Overrides the production/testnet URL when set
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Klines and trade streams are public; keys are only forwarded when present.
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty, using public endpoints only.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		serve:                futures.WsAggTradeServe,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1120, -1121: // Invalid interval, invalid symbol
			mappedErr = ports.ErrUnsupportedProduct
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1007: // Unknown, disconnected, backend timeout
			mappedErr = ports.ErrFeedUnavailable
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// ValidateGranularity implements ports.HistoricFeed.
func (c *Client) ValidateGranularity(seconds int) error {
	if _, ok := intervals[seconds]; !ok {
		return fmt.Errorf("%w: %d seconds has no Binance kline interval", ports.ErrUnsupportedGranularity, seconds)
	}
	return nil
}

// Fetch implements ports.HistoricFeed, returning the newest params.Candles klines up to params.End.
func (c *Client) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.Candle, error) {
	op := "FetchKlines"
	interval, ok := intervals[params.GranularitySeconds]
	if !ok {
		return nil, c.ValidateGranularity(params.GranularitySeconds)
	}
	limit := params.Candles
	if limit <= 0 || limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}

	svc := c.futuresClient.NewKlinesService().Symbol(params.Product).Interval(interval).Limit(limit)
	if !params.End.IsZero() {
		svc = svc.EndTime(params.End.UnixMilli())
	}
	binanceKlines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles, err := translateKlines(binanceKlines)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": params.Product, "interval": interval, "count": len(candles)})
	return candles, nil
}

// FetchRange pages through every kline between start and end.
func (c *Client) FetchRange(ctx context.Context, symbol string, granularitySeconds int, start, end time.Time) ([]domain.Candle, error) {
	op := "FetchKlinesRange"
	interval, ok := intervals[granularitySeconds]
	if !ok {
		return nil, c.ValidateGranularity(granularitySeconds)
	}

	var all []domain.Candle
	from := start
	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		candles, err := translateKlines(klines)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
		}
		all = append(all, candles...)

		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesLimit {
			break
		}
	}

	return all, nil
}

func translateKlines(klines []*futures.Kline) ([]domain.Candle, error) {
	candles := make([]domain.Candle, 0, len(klines))
	for _, bk := range klines {
		candle, err := translateBinanceKline(bk)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	slices.SortStableFunc(candles, domain.CompareByDate)
	return candles, nil
}

func translateBinanceKline(bk *futures.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		Date:   time.UnixMilli(bk.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}

func translateAggTrade(event *futures.WsAggTradeEvent) (domain.Trade, error) {
	if event == nil {
		return domain.Trade{}, errors.New("received nil aggregated trade event")
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parsing trade price '%s': %w", event.Price, err)
	}
	size, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parsing trade quantity '%s': %w", event.Quantity, err)
	}
	return domain.Trade{
		Time:    time.UnixMilli(event.TradeTime).UTC(),
		Price:   price,
		Size:    size,
		Product: event.Symbol,
	}, nil
}
