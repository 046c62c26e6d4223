package indicators

import (
	"math"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// BollingerConfig holds configuration for Bollinger Bands
type BollingerConfig struct {
	IndicatorConfig
	Multiplier float64 // Standard deviations between the middle and outer bands
}

// BollingerBands plots an SMA of closes with bands Multiplier standard deviations away.
type BollingerBands struct {
	BaseIndicator
	multiplier float64
}

func NewBollingerBands(config BollingerConfig) *BollingerBands {
	if config.Multiplier <= 0 {
		config.Multiplier = 2
	}
	return &BollingerBands{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		multiplier:    config.Multiplier,
	}
}

func (b *BollingerBands) Name() string {
	return "Bollinger"
}

// Compute returns middle, upper and lower band values. The deviation is the
// population standard deviation of the window.
func (b *BollingerBands) Compute(candles []domain.Candle) (domain.Series, error) {
	period := b.Config.Period
	if err := b.check(b.Name(), candles, period); err != nil {
		return domain.Series{}, err
	}

	values := closes(candles)
	middle := sma(values, period)
	s := domain.Series{Name: b.Name(), Fields: []string{"middle", "upper", "lower"}}
	for i := period - 1; i < len(values); i++ {
		variance := 0.0
		for _, v := range values[i-period+1 : i+1] {
			d := v - middle[i]
			variance += d * d
		}
		dev := b.multiplier * math.Sqrt(variance/float64(period))
		s.Points = append(s.Points, domain.SeriesPoint{
			Date:   candles[i].Date,
			Values: []float64{middle[i], middle[i] + dev, middle[i] - dev},
		})
	}
	return s, nil
}
