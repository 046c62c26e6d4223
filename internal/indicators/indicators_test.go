package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
)

var start = time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)

func candlesFromCloses(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{Date: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}

// lastValues returns field values of the newest point.
func lastValues(t *testing.T, s domain.Series) []float64 {
	t.Helper()
	if len(s.Points) == 0 {
		t.Fatalf("series %s has no points", s.Name)
	}
	return s.Points[len(s.Points)-1].Values
}

func TestMovingAverage_Compute(t *testing.T) {
	candles := candlesFromCloses(100, 102, 101, 103, 104)

	tests := []struct {
		name           string
		config         MovingAverageConfig
		expectedPoints int
		expectedValue  float64
		expectError    bool
	}{
		{
			name: "SMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            SimpleMovingAverage,
			},
			expectedPoints: 3,
			expectedValue:  102.666667, // (101 + 103 + 104) / 3
		},
		{
			name: "EMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            ExponentialMovingAverage,
			},
			expectedPoints: 3,
			expectedValue:  103.0, // seed 101, then 102, then 103
		},
		{
			name: "Insufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 6},
				Type:            SimpleMovingAverage,
			},
			expectError: true,
		},
		{
			name: "Invalid MA type",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            "INVALID",
			},
			expectError: true,
		},
		{
			name: "Zero period",
			config: MovingAverageConfig{
				Type: SimpleMovingAverage,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			series, err := ma.Compute(candles)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(series.Points) != tt.expectedPoints {
				t.Fatalf("Expected %d points, got %d", tt.expectedPoints, len(series.Points))
			}
			if !series.Points[0].Date.Equal(candles[2].Date) {
				t.Errorf("Expected first point at %s, got %s", candles[2].Date, series.Points[0].Date)
			}
			if value := lastValues(t, series)[0]; !approx(value, tt.expectedValue) {
				t.Errorf("Expected value %f, got %f", tt.expectedValue, value)
			}
		})
	}
}

func TestMovingAverage_Name(t *testing.T) {
	if name := NewMovingAverage(MovingAverageConfig{Type: SimpleMovingAverage}).Name(); name != "SMA" {
		t.Errorf("Expected name SMA, got %s", name)
	}
	if name := NewMovingAverage(MovingAverageConfig{Type: ExponentialMovingAverage}).Name(); name != "EMA" {
		t.Errorf("Expected name EMA, got %s", name)
	}
}

func TestRSI_Compute(t *testing.T) {
	tests := []struct {
		name     string
		period   int
		candles  []domain.Candle
		expected []float64
		wantErr  bool
	}{
		{
			name:     "Wilder smoothing",
			period:   3,
			candles:  candlesFromCloses(100, 102, 101, 103, 102, 104), // +2 -1 +2 -1 +2
			expected: []float64{80, 61.538462, 77.272727},
		},
		{
			name:     "All gains",
			period:   3,
			candles:  candlesFromCloses(100, 102, 104, 106),
			expected: []float64{100},
		},
		{
			name:     "All losses",
			period:   3,
			candles:  candlesFromCloses(106, 104, 102, 100),
			expected: []float64{0},
		},
		{
			name:     "No change",
			period:   2,
			candles:  candlesFromCloses(5, 5, 5),
			expected: []float64{50},
		},
		{
			name:    "Insufficient data",
			period:  7,
			candles: candlesFromCloses(100, 102, 101, 103, 102, 104),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}})
			series, err := rsi.Compute(tt.candles)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(series.Points) != len(tt.expected) {
				t.Fatalf("Expected %d points, got %d", len(tt.expected), len(series.Points))
			}
			for i, want := range tt.expected {
				if got := series.Points[i].Values[0]; !approx(got, want) {
					t.Errorf("Point %d: expected %f, got %f", i, want, got)
				}
			}
		})
	}
}

func TestRSI_RequiredDataPoints(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	if got := rsi.RequiredDataPoints(); got != 15 {
		t.Errorf("Expected 15 required data points, got %d", got)
	}
}

func TestBollingerBands_Compute(t *testing.T) {
	bb := NewBollingerBands(BollingerConfig{IndicatorConfig: IndicatorConfig{Period: 3}})
	series, err := bb.Compute(candlesFromCloses(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(series.Points))
	}

	// window {1,2,3}: mean 2, population deviation sqrt(2/3)
	first := series.Points[0].Values
	dev := 2 * math.Sqrt(2.0/3.0)
	want := []float64{2, 2 + dev, 2 - dev}
	for i := range want {
		if !approx(first[i], want[i]) {
			t.Errorf("Field %s: expected %f, got %f", series.Fields[i], want[i], first[i])
		}
	}

	flat, err := bb.Compute(candlesFromCloses(7, 7, 7))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v := flat.Points[0].Values; v[1] != 7 || v[2] != 7 {
		t.Errorf("Expected collapsed bands on flat prices, got %v", v)
	}
}

func TestMACD_Compute(t *testing.T) {
	macd := NewMACD(MACDConfig{FastPeriod: 2, SlowPeriod: 3, SignalPeriod: 2})
	candles := candlesFromCloses(1, 2, 3, 4, 5, 6)

	series, err := macd.Compute(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// a linear trend keeps the fast EMA half a unit above the slow one
	if len(series.Points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(series.Points))
	}
	if !series.Points[0].Date.Equal(candles[3].Date) {
		t.Errorf("Expected first point at %s, got %s", candles[3].Date, series.Points[0].Date)
	}
	for _, p := range series.Points {
		if !approx(p.Values[0], 0.5) || !approx(p.Values[1], 0.5) || !approx(p.Values[2], 0) {
			t.Errorf("Unexpected MACD values %v at %s", p.Values, p.Date)
		}
	}

	if _, err := NewMACD(MACDConfig{FastPeriod: 3, SlowPeriod: 2, SignalPeriod: 2}).Compute(candles); err == nil {
		t.Error("Expected error for fast period above slow period")
	}
	if _, err := macd.Compute(candles[:3]); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestATR_Compute(t *testing.T) {
	candles := []domain.Candle{
		{Date: start, High: 10, Low: 8, Close: 9},
		{Date: start.Add(time.Hour), High: 11, Low: 9, Close: 10},
		{Date: start.Add(2 * time.Hour), High: 14, Low: 10, Close: 13},
	}
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 2}})

	series, err := atr.Compute(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// true ranges 2, 2, 4
	want := []float64{2, 3}
	if len(series.Points) != len(want) {
		t.Fatalf("Expected %d points, got %d", len(want), len(series.Points))
	}
	for i := range want {
		if got := series.Points[i].Values[0]; !approx(got, want[i]) {
			t.Errorf("Point %d: expected %f, got %f", i, want[i], got)
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse([]string{"sma", " RSI ", "", "bollinger", "macd", "ema", "atr"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	names := []string{"SMA", "RSI", "Bollinger", "MACD", "EMA", "ATR"}
	if len(got) != len(names) {
		t.Fatalf("Expected %d indicators, got %d", len(names), len(got))
	}
	for i, name := range names {
		if got[i].Name() != name {
			t.Errorf("Indicator %d: expected %s, got %s", i, name, got[i].Name())
		}
	}

	if _, err := Parse([]string{"ichimoku"}); err == nil {
		t.Error("Expected error for unknown indicator")
	}
}
