package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vtruhin/StockFlux/config"
	"github.com/vtruhin/StockFlux/internal/adapters/binanceclient"
	"github.com/vtruhin/StockFlux/internal/adapters/logger"
	"github.com/vtruhin/StockFlux/internal/adapters/sqlite"
	"github.com/vtruhin/StockFlux/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "Binance futures symbol to fetch")
	granularity := flag.Int("granularity", 86400, "Candle granularity in seconds")
	days := flag.Int("days", 365, "How many days back to fetch when the archive has nothing stored")
	csvDir := flag.String("csv", "", "Also write the fetched candles as CSV into this directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 4. Initialize the candle archive
	if dir := filepath.Dir(cfg.ArchiveDBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("FATAL: Failed to create archive directory: %v", err)
		}
	}
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:        cfg.ArchiveDBPath,
		Logger:        appLogger,
		Granularities: binanceclient.Granularities(),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize candle archive")
		log.Fatalf("FATAL: Failed to initialize candle archive: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing candle archive")
		}
	}()

	if err := binanceClient.ValidateGranularity(*granularity); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// Resume after the newest stored candle
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)
	latest, ok, err := repo.LatestDate(ctx, *symbol, *granularity)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to read newest archived candle")
		return
	}
	if ok {
		// the newest stored candle may have been incomplete, fetch it again
		start = latest
	}

	fields := map[string]interface{}{
		"symbol":      *symbol,
		"granularity": *granularity,
		"start":       start.Format(time.RFC3339),
		"end":         end.Format(time.RFC3339),
	}
	appLogger.Info(ctx, "Fetching candles", fields)
	candles, err := binanceClient.FetchRange(ctx, *symbol, *granularity, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles", fields)
		return
	}

	saved, err := repo.SaveCandles(ctx, *symbol, *granularity, candles)
	if err != nil {
		appLogger.Error(ctx, err, "Error saving candles", fields)
		return
	}
	fields["fetched"] = len(candles)
	fields["saved"] = saved
	appLogger.Info(ctx, "Candles archived", fields)

	if *csvDir == "" {
		return
	}
	filename := filepath.Join(*csvDir, fmt.Sprintf("%s_%d_%s_to_%s.csv", *symbol, *granularity, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteCandlesToCSV(candles, *symbol, *granularity, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		return
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
