// Package indicators computes technical indicator series over candles.
package indicators

import (
	"fmt"
	"strings"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Compute returns the indicator series for candles sorted ascending by date.
	Compute(candles []domain.Candle) (domain.Series, error)

	// RequiredDataPoints returns the minimum number of candles needed for the first point
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of candles needed for the first point
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func (b *BaseIndicator) check(name string, candles []domain.Candle, required int) error {
	if b.Config.Period <= 0 {
		return fmt.Errorf("%s period must be positive, got %d", name, b.Config.Period)
	}
	if len(candles) < required {
		return fmt.Errorf("not enough data (%d) to calculate %s for period %d", len(candles), name, b.Config.Period)
	}
	return nil
}

// Parse builds indicators from names such as "sma", "ema", "bollinger", "rsi", "macd" and "atr",
// using the usual charting defaults for their periods.
func Parse(names []string) ([]Indicator, error) {
	var out []Indicator
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case "sma", "movingaverage":
			out = append(out, NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 10}, Type: SimpleMovingAverage}))
		case "ema":
			out = append(out, NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 10}, Type: ExponentialMovingAverage}))
		case "bollinger":
			out = append(out, NewBollingerBands(BollingerConfig{IndicatorConfig: IndicatorConfig{Period: 20}, Multiplier: 2}))
		case "rsi":
			out = append(out, NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}}))
		case "macd":
			out = append(out, NewMACD(MACDConfig{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9}))
		case "atr":
			out = append(out, NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}}))
		default:
			return nil, fmt.Errorf("unknown indicator %q", name)
		}
	}
	return out, nil
}

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// singleField builds a one-field series from values, starting at index from.
func singleField(name, field string, candles []domain.Candle, values []float64, from int) domain.Series {
	s := domain.Series{Name: name, Fields: []string{field}}
	for i := from; i < len(candles); i++ {
		s.Points = append(s.Points, domain.SeriesPoint{Date: candles[i].Date, Values: []float64{values[i]}})
	}
	return s
}
