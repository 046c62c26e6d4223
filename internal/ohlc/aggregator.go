// Package ohlc folds individual trades into fixed-granularity candles.
package ohlc

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
)

var (
	ErrInvalidGranularity = errors.New("granularity must be positive")
	ErrInvalidTrade       = errors.New("trade has invalid price or size")
)

// ClosePolicy decides which trade sets a bucket's open and close when trades
// arrive out of chronological order.
type ClosePolicy int

const (
	// ArrivalOrder: the last trade received sets close, the first received sets open.
	ArrivalOrder ClosePolicy = iota
	// TradeTime: the trade with the latest timestamp sets close, the earliest sets open.
	// Ties resolve by arrival.
	TradeTime
)

func (p ClosePolicy) String() string {
	switch p {
	case ArrivalOrder:
		return "arrival"
	case TradeTime:
		return "trade_time"
	default:
		return "unknown"
	}
}

// ParseClosePolicy converts a config string to a ClosePolicy.
func ParseClosePolicy(s string) (ClosePolicy, error) {
	switch s {
	case "", "arrival":
		return ArrivalOrder, nil
	case "trade_time":
		return TradeTime, nil
	default:
		return ArrivalOrder, fmt.Errorf("unknown close policy %q", s)
	}
}

// MondayOrigin is a Monday midnight UTC. Exchanges open weekly candles on Mondays,
// while the Unix epoch falls on a Thursday.
var MondayOrigin = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

// Config holds aggregator settings.
type Config struct {
	GranularitySeconds int
	MaxCandles         int // Oldest candles beyond this count are dropped; 0 keeps everything
	ClosePolicy        ClosePolicy
	// Origin is the instant bucket boundaries are counted from. Zero means the
	// Unix epoch, except for whole-week granularities which count from MondayOrigin.
	Origin time.Time
}

// bucketState remembers the timestamps behind a candle's open and close.
// Only maintained for candles touched by trades; snapshot candles start without one.
type bucketState struct {
	openAt  time.Time
	closeAt time.Time
}

// Aggregator owns a sorted, unique-by-date candle sequence and applies trades to it.
// It is not safe for concurrent use; the owner serializes access.
type Aggregator struct {
	granularity time.Duration
	origin      time.Time
	maxCandles  int
	policy      ClosePolicy
	candles     []domain.Candle
	buckets     map[int64]*bucketState
}

// IngestResult describes what a trade did to the sequence.
type IngestResult struct {
	Candle  domain.Candle // The candle after the update
	Index   int           // Position after the update and trimming; -1 when retention dropped it
	Created bool          // A new bucket was inserted
	Trimmed int           // Number of old candles dropped by retention
}

// New creates an aggregator with an empty sequence.
func New(cfg Config) (*Aggregator, error) {
	if cfg.GranularitySeconds <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGranularity, cfg.GranularitySeconds)
	}
	if cfg.MaxCandles < 0 {
		return nil, fmt.Errorf("max candles cannot be negative: got %d", cfg.MaxCandles)
	}
	granularity := time.Duration(cfg.GranularitySeconds) * time.Second
	origin := cfg.Origin
	if origin.IsZero() {
		origin = DefaultOrigin(granularity)
	}
	return &Aggregator{
		granularity: granularity,
		origin:      origin,
		maxCandles:  cfg.MaxCandles,
		policy:      cfg.ClosePolicy,
		buckets:     make(map[int64]*bucketState),
	}, nil
}

// Granularity returns the bucket length.
func (a *Aggregator) Granularity() time.Duration {
	return a.granularity
}

// Origin returns the instant bucket boundaries are counted from.
func (a *Aggregator) Origin() time.Time {
	return a.origin
}

// BucketStart returns the start of the bucket containing t.
func (a *Aggregator) BucketStart(t time.Time) time.Time {
	return BucketStartFrom(t, a.granularity, a.origin)
}

// DefaultOrigin returns MondayOrigin for whole-week granularities and the Unix epoch otherwise.
func DefaultOrigin(granularity time.Duration) time.Time {
	if granularity%week == 0 {
		return MondayOrigin
	}
	return time.UnixMilli(0).UTC()
}

// BucketStart floors t to a multiple of granularity since the Unix epoch, in milliseconds.
func BucketStart(t time.Time, granularity time.Duration) time.Time {
	return BucketStartFrom(t, granularity, time.UnixMilli(0))
}

// BucketStartFrom floors t to a multiple of granularity since origin, in milliseconds.
func BucketStartFrom(t time.Time, granularity time.Duration, origin time.Time) time.Time {
	g := granularity.Milliseconds()
	base := origin.UnixMilli()
	ms := t.UnixMilli() - base
	rem := ms % g
	if rem < 0 {
		rem += g
	}
	return time.UnixMilli(base + ms - rem).UTC()
}

// Reset replaces the sequence with a date-sorted copy of snapshot.
// Duplicate dates keep the last occurrence.
func (a *Aggregator) Reset(snapshot []domain.Candle) {
	sorted := slices.Clone(snapshot)
	slices.SortStableFunc(sorted, domain.CompareByDate)

	candles := make([]domain.Candle, 0, len(sorted))
	for _, c := range sorted {
		if n := len(candles); n > 0 && candles[n-1].Date.Equal(c.Date) {
			candles[n-1] = c
			continue
		}
		candles = append(candles, c)
	}
	a.candles = candles
	a.buckets = make(map[int64]*bucketState)
	a.trim()
}

// Len returns the number of candles held.
func (a *Aggregator) Len() int {
	return len(a.candles)
}

// Candles returns a copy of the sequence.
func (a *Aggregator) Candles() []domain.Candle {
	return slices.Clone(a.candles)
}

// Latest returns the newest candle.
func (a *Aggregator) Latest() (domain.Candle, bool) {
	if len(a.candles) == 0 {
		return domain.Candle{}, false
	}
	return a.candles[len(a.candles)-1], true
}

func (a *Aggregator) search(date time.Time) (int, bool) {
	return slices.BinarySearchFunc(a.candles, date, func(c domain.Candle, target time.Time) int {
		return c.Date.Compare(target)
	})
}

// Ingest folds one trade into the sequence.
func (a *Aggregator) Ingest(trade domain.Trade) (IngestResult, error) {
	if trade.Price <= 0 || trade.Size < 0 {
		return IngestResult{}, fmt.Errorf("%w: price=%v size=%v", ErrInvalidTrade, trade.Price, trade.Size)
	}

	bucket := a.BucketStart(trade.Time)
	key := bucket.UnixMilli()
	idx, found := a.search(bucket)

	if found {
		c := a.candles[idx]
		c.High = max(c.High, trade.Price)
		c.Low = min(c.Low, trade.Price)
		c.Volume += trade.Size

		state, tracked := a.buckets[key]
		if !tracked {
			// Snapshot candle: its open predates any streamed trade.
			state = &bucketState{openAt: bucket, closeAt: trade.Time}
			a.buckets[key] = state
			c.Close = trade.Price
		} else {
			a.applyOpenClose(&c, state, trade)
		}

		a.candles[idx] = c
		return IngestResult{Candle: c, Index: idx}, nil
	}

	c := domain.Candle{
		Date:   bucket,
		Open:   trade.Price,
		High:   trade.Price,
		Low:    trade.Price,
		Close:  trade.Price,
		Volume: trade.Size,
	}
	a.candles = slices.Insert(a.candles, idx, c)
	a.buckets[key] = &bucketState{openAt: trade.Time, closeAt: trade.Time}

	trimmed := a.trim()
	idx -= trimmed
	if idx < 0 {
		idx = -1
	}
	return IngestResult{Candle: c, Index: idx, Created: true, Trimmed: trimmed}, nil
}

func (a *Aggregator) applyOpenClose(c *domain.Candle, state *bucketState, trade domain.Trade) {
	switch a.policy {
	case TradeTime:
		if !trade.Time.Before(state.closeAt) {
			c.Close = trade.Price
			state.closeAt = trade.Time
		}
		if trade.Time.Before(state.openAt) {
			c.Open = trade.Price
			state.openAt = trade.Time
		}
	default:
		c.Close = trade.Price
		state.closeAt = trade.Time
	}
}

// trim drops the oldest candles beyond the retention cap and returns how many were dropped.
func (a *Aggregator) trim() int {
	if a.maxCandles == 0 || len(a.candles) <= a.maxCandles {
		return 0
	}
	n := len(a.candles) - a.maxCandles
	for _, c := range a.candles[:n] {
		delete(a.buckets, c.Date.UnixMilli())
	}
	a.candles = slices.Delete(a.candles, 0, n)
	return n
}
