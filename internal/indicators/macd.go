package indicators

import (
	"fmt"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// MACDConfig holds the three EMA periods of the MACD indicator
type MACDConfig struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// MACD is the difference of a fast and a slow EMA of closes, with an EMA signal line.
type MACD struct {
	config MACDConfig
}

func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

func (m *MACD) Name() string {
	return "MACD"
}

func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod - 1
}

// Compute returns macd, signal and divergence values once all three are defined.
func (m *MACD) Compute(candles []domain.Candle) (domain.Series, error) {
	c := m.config
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 || c.SignalPeriod <= 0 {
		return domain.Series{}, fmt.Errorf("MACD periods must be positive, got %d/%d/%d", c.FastPeriod, c.SlowPeriod, c.SignalPeriod)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return domain.Series{}, fmt.Errorf("MACD fast period (%d) must be less than slow period (%d)", c.FastPeriod, c.SlowPeriod)
	}
	if len(candles) < m.RequiredDataPoints() {
		return domain.Series{}, fmt.Errorf("not enough data (%d) to calculate MACD, need %d", len(candles), m.RequiredDataPoints())
	}

	values := closes(candles)
	fast := ema(values, c.FastPeriod)
	slow := ema(values, c.SlowPeriod)

	start := c.SlowPeriod - 1
	line := make([]float64, len(values)-start)
	for i := range line {
		line[i] = fast[start+i] - slow[start+i]
	}
	signal := ema(line, c.SignalPeriod)

	s := domain.Series{Name: m.Name(), Fields: []string{"macd", "signal", "divergence"}}
	for i := c.SignalPeriod - 1; i < len(line); i++ {
		s.Points = append(s.Points, domain.SeriesPoint{
			Date:   candles[start+i].Date,
			Values: []float64{line[i], signal[i], line[i] - signal[i]},
		})
	}
	return s, nil
}
