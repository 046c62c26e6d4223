package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// WriteCandlesToCSV writes candles to filename, one row per candle.
func WriteCandlesToCSV(candles []domain.Candle, product string, granularitySeconds int, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteCandles(file, candles, product, granularitySeconds)
}

// WriteCandles writes a header and one row per candle to w.
func WriteCandles(w io.Writer, candles []domain.Candle, product string, granularitySeconds int) error {
	writer := csv.NewWriter(w)

	// Write header
	writer.Write([]string{"date", "product", "granularity", "open", "high", "low", "close", "volume"})

	granularity := strconv.Itoa(granularitySeconds)
	for _, c := range candles {
		writer.Write([]string{
			c.Date.UTC().Format(time.RFC3339),
			product,
			granularity,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	writer.Flush()
	return writer.Error()
}
