package indicators

import (
	"fmt"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators over candle closes
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Compute returns the moving average series for the configured type
func (m *MovingAverage) Compute(candles []domain.Candle) (domain.Series, error) {
	if err := m.check(m.Name(), candles, m.Config.Period); err != nil {
		return domain.Series{}, err
	}

	var values []float64
	switch m.config.Type {
	case SimpleMovingAverage:
		values = sma(closes(candles), m.Config.Period)
	case ExponentialMovingAverage:
		values = ema(closes(candles), m.Config.Period)
	default:
		return domain.Series{}, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
	return singleField(m.Name(), "movingAverage", candles, values, m.Config.Period-1), nil
}

// sma computes the Simple Moving Average; values before period-1 are left zero.
func sma(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for i, v := range values {
		total += v
		if i >= period {
			total -= values[i-period]
		}
		if i >= period-1 {
			out[i] = total / float64(period)
		}
	}
	return out
}

// ema computes the Exponential Moving Average seeded with the SMA of the first
// period values; values before period-1 are left zero.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period {
		return out
	}
	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	e := seed / float64(period)
	out[period-1] = e

	// Apply EMA formula for the rest of the values
	for i := period; i < len(values); i++ {
		e = (values[i]-e)*multiplier + e
		out[i] = e
	}
	return out
}
