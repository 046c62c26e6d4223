// Package generator produces random-walk daily candles for demos and offline use.
package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

// ProductID is the only product the generator serves.
const ProductID = "Data Generator"

const tradingDaysPerYear = 252

// Config holds the random walk parameters. Zero values take the defaults.
type Config struct {
	Seed        uint64
	StartPrice  float64 // Defaults to 100
	Drift       float64 // Annualised, defaults to 0.1
	Volatility  float64 // Annualised, defaults to 0.1
	StartVolume float64 // Defaults to 100000
	StepsPerDay int     // Price steps simulated per candle, defaults to 50
	Logger      ports.Logger
}

// Generator implements ports.HistoricFeed with geometric Brownian motion.
// Weekends are skipped, so it pairs with the weekend-skipping discontinuity model.
type Generator struct {
	cfg    Config
	logger ports.Logger
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for data generator")
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	if cfg.Drift == 0 {
		cfg.Drift = 0.1
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.1
	}
	if cfg.StartVolume <= 0 {
		cfg.StartVolume = 100000
	}
	if cfg.StepsPerDay <= 0 {
		cfg.StepsPerDay = 50
	}
	return &Generator{cfg: cfg, logger: cfg.Logger}, nil
}

// ValidateGranularity implements ports.HistoricFeed. Only daily data is generated.
func (g *Generator) ValidateGranularity(seconds int) error {
	if seconds != domain.PeriodDay1.Seconds {
		return fmt.Errorf("%w: granularity of %d is not supported, the data generator only supports daily data", ports.ErrUnsupportedGranularity, seconds)
	}
	return nil
}

// Fetch implements ports.HistoricFeed. It returns params.Candles weekday candles,
// the last on or before the UTC day of params.End. The same seed and window
// always produce the same candles.
func (g *Generator) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.Candle, error) {
	if params.Product != ProductID {
		return nil, fmt.Errorf("%w: the data generator does not support product %q", ports.ErrUnsupportedProduct, params.Product)
	}
	if err := g.ValidateGranularity(params.GranularitySeconds); err != nil {
		return nil, err
	}
	if params.Candles <= 0 {
		return nil, fmt.Errorf("%w: candle count must be positive, got %d", ports.ErrInvalidRequest, params.Candles)
	}

	end := params.End
	if end.IsZero() {
		end = time.Now()
	}
	y, m, d := end.UTC().Date()
	endDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	startDay := weekdaysBack(endDay, params.Candles)

	rng := rand.New(rand.NewPCG(g.cfg.Seed, uint64(startDay.Unix())))
	dt := 1 / float64(tradingDaysPerYear*g.cfg.StepsPerDay)
	drift := (g.cfg.Drift - g.cfg.Volatility*g.cfg.Volatility/2) * dt
	diffusion := g.cfg.Volatility * math.Sqrt(dt)

	price := g.cfg.StartPrice
	candles := make([]domain.Candle, 0, params.Candles)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		if isWeekend(day) {
			continue
		}
		c := domain.Candle{Date: day, Open: price, High: price, Low: price}
		for i := 0; i < g.cfg.StepsPerDay; i++ {
			price *= math.Exp(drift + diffusion*rng.NormFloat64())
			c.High = max(c.High, price)
			c.Low = min(c.Low, price)
		}
		c.Close = price
		c.Volume = math.Round(g.cfg.StartVolume * math.Max(0.1, 1+0.2*rng.NormFloat64()))
		candles = append(candles, c)
	}

	g.logger.Debug(ctx, "Generated candles", map[string]interface{}{"count": len(candles), "start": startDay.Format(time.DateOnly), "end": endDay.Format(time.DateOnly)})
	return candles, nil
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// weekdaysBack returns the earliest of the n weekdays ending on or before endDay.
func weekdaysBack(endDay time.Time, n int) time.Time {
	day := endDay
	for isWeekend(day) {
		day = day.AddDate(0, 0, -1)
	}
	for n > 1 {
		day = day.AddDate(0, 0, -1)
		if !isWeekend(day) {
			n--
		}
	}
	return day
}
