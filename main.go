package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/vtruhin/StockFlux/config"
	"github.com/vtruhin/StockFlux/internal/adapters/binanceclient"
	"github.com/vtruhin/StockFlux/internal/adapters/coinbase"
	"github.com/vtruhin/StockFlux/internal/adapters/generator"
	"github.com/vtruhin/StockFlux/internal/adapters/logger"
	"github.com/vtruhin/StockFlux/internal/adapters/logsink"
	"github.com/vtruhin/StockFlux/internal/adapters/sqlite"
	"github.com/vtruhin/StockFlux/internal/app"
	"github.com/vtruhin/StockFlux/internal/discontinuity"
	"github.com/vtruhin/StockFlux/internal/indicators"
	"github.com/vtruhin/StockFlux/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize the data source for the configured product
	source, productIDs, cleanup, err := newSource(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize data source", map[string]interface{}{"source": cfg.Source})
		log.Fatalf("FATAL: Failed to initialize data source: %v", err)
	}
	defer cleanup()
	appLogger.Info(ctx, "Data source initialized", map[string]interface{}{"source": cfg.Source, "products": len(productIDs)})

	products, err := app.Products(cfg.Source, productIDs...)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build product list")
		log.Fatalf("FATAL: Failed to build product list: %v", err)
	}

	chartIndicators, err := indicators.Parse(cfg.Indicators)
	if err != nil {
		log.Fatalf("FATAL: Failed to build indicators: %v", err)
	}

	// 4. Initialize the render sink
	sink, err := logsink.New(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize render sink: %v", err)
	}

	// 5. Initialize Application Service
	chartService, err := app.NewChartService(app.Config{
		Logger:              appLogger,
		Sink:                sink,
		Notifier:            sink,
		Sources:             []app.Source{source},
		Products:            products,
		Indicators:          chartIndicators,
		Candles:             cfg.Candles,
		DefaultVisibleRatio: cfg.DefaultVisibleRatio,
		ClosePolicy:         cfg.ClosePolicy,
		AllowPan:            cfg.AllowPan,
		AllowZoom:           cfg.AllowZoom,
		ViewWidth:           cfg.ViewWidth,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize chart service")
		log.Fatalf("FATAL: Failed to initialize chart service: %v", err)
	}
	appLogger.Info(ctx, "Chart service initialized")

	// Handle graceful shutdown
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(runCtx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel() // Cancel the main context
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- chartService.Run(runCtx) }()

	// 6. Select the configured product
	if err := chartService.SelectProduct(runCtx, cfg.Product, cfg.GranularitySeconds); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to select product", map[string]interface{}{"product": cfg.Product, "granularity": cfg.GranularitySeconds})
		cancel()
		<-runErr
		cleanup()
		log.Fatalf("FATAL: Failed to select product %s: %v", cfg.Product, err)
	}

	// 7. Run until shutdown
	if err := <-runErr; err != nil {
		appLogger.Error(ctx, err, "Chart service exited with error")
		log.Fatalf("FATAL: Chart service exited with error: %v", err)
	}

	renders, last := sink.Stats()
	appLogger.Info(ctx, "Application finished gracefully.", map[string]interface{}{"renders": renders, "lastDomain": last.Domain.String()})
}

// newSource builds the feeds for cfg.Source and returns the product IDs it serves.
func newSource(ctx context.Context, cfg *config.Config, appLogger ports.Logger) (app.Source, []string, func(), error) {
	noop := func() {}

	switch cfg.Source {
	case config.SourceBinance:
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
		if err != nil {
			return app.Source{}, nil, noop, err
		}
		return app.Source{
			Name:      config.SourceBinance,
			Historic:  client,
			NewStream: func() ports.StreamingFeed { return client.NewStream() },
		}, []string{cfg.Product}, noop, nil

	case config.SourceCoinbase:
		client, err := coinbase.New(coinbase.Config{
			RESTURL:           cfg.CoinbaseRESTURL,
			WSURL:             cfg.CoinbaseWSURL,
			RequestsPerSecond: cfg.CoinbaseRequestsPerSecond,
			Logger:            appLogger,
		})
		if err != nil {
			return app.Source{}, nil, noop, err
		}
		return app.Source{
			Name:      config.SourceCoinbase,
			Historic:  client,
			NewStream: func() ports.StreamingFeed { return client.NewStream() },
		}, []string{cfg.Product}, noop, nil

	case config.SourceArchive:
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.ArchiveDBPath, Logger: appLogger})
		if err != nil {
			return app.Source{}, nil, noop, err
		}
		cleanup := func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing candle archive")
			}
		}
		ids, err := repo.Products(ctx)
		if err != nil {
			cleanup()
			return app.Source{}, nil, noop, err
		}
		var provider discontinuity.Provider = discontinuity.NewIdentity()
		if cfg.ArchiveSkipWeekends {
			provider = discontinuity.NewSkipWeekends()
		}
		return app.Source{
			Name:     config.SourceArchive,
			Historic: repo,
			Provider: provider,
		}, append(ids, cfg.Product), cleanup, nil

	case config.SourceGenerated:
		gen, err := generator.New(generator.Config{Logger: appLogger})
		if err != nil {
			return app.Source{}, nil, noop, err
		}
		return app.Source{
			Name:     config.SourceGenerated,
			Historic: gen,
			Provider: discontinuity.NewSkipWeekends(),
		}, []string{generator.ProductID}, noop, nil

	default:
		return app.Source{}, nil, noop, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
