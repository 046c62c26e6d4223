package ports

import (
	"context"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// FetchParams describes one historic snapshot request.
type FetchParams struct {
	Product            string    // Product ID understood by the feed
	GranularitySeconds int       // Candle granularity in seconds
	Candles            int       // Number of candles wanted, ending at End
	End                time.Time // Newest instant wanted; zero means now
}

// HistoricFeed loads candle snapshots.
type HistoricFeed interface {
	// Fetch returns candles for params, sorted ascending by date.
	Fetch(ctx context.Context, params FetchParams) ([]domain.Candle, error)

	// ValidateGranularity returns ErrUnsupportedGranularity (wrapped) when the
	// feed cannot serve candles of the given size.
	ValidateGranularity(seconds int) error
}

// StreamHandlers receive streaming feed events. Handlers are called from the
// feed's own goroutine; nil handlers are skipped.
type StreamHandlers struct {
	OnTrade func(trade domain.Trade)
	OnError func(err error)
	OnClose func(info domain.CloseInfo)
}

// StreamingFeed delivers live trades for one product.
type StreamingFeed interface {
	// Open connects and starts delivering events to h. It returns once the
	// connection is established; events arrive asynchronously afterwards.
	Open(ctx context.Context, product string, h StreamHandlers) error

	// Close stops the stream. Calling Close more than once is a no-op.
	Close() error
}

// CandleArchive stores candles for later use as a historic snapshot source.
type CandleArchive interface {
	HistoricFeed

	// SaveCandles upserts candles for product and granularity and returns how many were written.
	SaveCandles(ctx context.Context, product string, granularitySeconds int, candles []domain.Candle) (int, error)

	// LatestDate returns the newest stored candle date, or false when nothing is stored.
	LatestDate(ctx context.Context, product string, granularitySeconds int) (time.Time, bool, error)

	Close() error
}
