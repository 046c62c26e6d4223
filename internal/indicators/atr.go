package indicators

import (
	"math"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

func (a *ATR) Name() string {
	return "ATR"
}

// Compute returns the Average True Range series for the given candles
func (a *ATR) Compute(candles []domain.Candle) (domain.Series, error) {
	period := a.Config.Period
	if err := a.check(a.Name(), candles, period); err != nil {
		return domain.Series{}, err
	}

	// First TR is just the high-low range
	trueRanges := make([]float64, len(candles))
	trueRanges[0] = candles[0].High - candles[0].Low

	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. |Current High - Previous Close|
		// 3. |Current Low - Previous Close|
		trueRanges[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	values := make([]float64, len(candles))

	// First ATR is simple average of first 'period' true ranges
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)
	values[period-1] = atr

	// Apply Wilder's smoothing for remaining periods
	for i := period; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
		values[i] = atr
	}

	return singleField(a.Name(), "atr", candles, values, period-1), nil
}
