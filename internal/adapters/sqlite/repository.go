package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

// DefaultGranularities are the periods the archive serves unless configured otherwise.
var DefaultGranularities = []int{domain.PeriodDay1.Seconds, domain.PeriodWeek1.Seconds}

// Repository implements ports.CandleArchive using SQLite.
type Repository struct {
	db            *sql.DB
	logger        ports.Logger
	granularities []int
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath        string
	Logger        ports.Logger
	Granularities []int // Granularities Fetch accepts; defaults to DefaultGranularities
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/candles.db" // Default path
	}
	granularities := cfg.Granularities
	if len(granularities) == 0 {
		granularities = DefaultGranularities
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, granularities: slices.Clone(granularities)}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Debug(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		product TEXT NOT NULL,
		granularity INTEGER NOT NULL,
		date INTEGER NOT NULL, -- unix milliseconds, UTC
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (product, granularity, date)
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// ValidateGranularity implements ports.HistoricFeed.
func (r *Repository) ValidateGranularity(seconds int) error {
	if !slices.Contains(r.granularities, seconds) {
		return fmt.Errorf("%w: archive serves %v seconds, got %d", ports.ErrUnsupportedGranularity, r.granularities, seconds)
	}
	return nil
}

// SaveCandles upserts candles and returns how many rows were written.
func (r *Repository) SaveCandles(ctx context.Context, product string, granularitySeconds int, candles []domain.Candle) (int, error) {
	const query = `
	INSERT INTO candles (product, granularity, date, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (product, granularity, date) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume`

	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare candle upsert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, product, granularitySeconds, c.Date.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return 0, fmt.Errorf("failed to upsert candle %s for %s: %w: %w", c.Date.Format(time.RFC3339), product, ports.ErrUpdateFailed, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit candles for %s: %w: %w", product, ports.ErrUpdateFailed, err)
	}

	r.logger.Debug(ctx, "Candles saved", map[string]interface{}{"product": product, "granularity": granularitySeconds, "count": len(candles)})
	return len(candles), nil
}

// Fetch implements ports.HistoricFeed: the newest params.Candles rows at or before params.End, ascending.
func (r *Repository) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.Candle, error) {
	const query = `
	SELECT date, open, high, low, close, volume FROM candles
	WHERE product = ? AND granularity = ? AND date <= ?
	ORDER BY date DESC
	LIMIT ?`

	if err := r.ValidateGranularity(params.GranularitySeconds); err != nil {
		return nil, err
	}
	end := params.End
	if end.IsZero() {
		end = time.Now()
	}
	limit := params.Candles
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx, query, params.Product, params.GranularitySeconds, end.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w: %w", params.Product, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var (
			c      domain.Candle
			dateMs int64
		)
		if err := rows.Scan(&dateMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w: %w", ports.ErrQueryFailed, err)
		}
		c.Date = time.UnixMilli(dateMs).UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w: %w", ports.ErrQueryFailed, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s at %d seconds: %w", params.Product, params.GranularitySeconds, ports.ErrNotFound)
	}

	slices.Reverse(candles)
	return candles, nil
}

// LatestDate returns the newest stored candle date.
func (r *Repository) LatestDate(ctx context.Context, product string, granularitySeconds int) (time.Time, bool, error) {
	const query = `SELECT MAX(date) FROM candles WHERE product = ? AND granularity = ?`

	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, product, granularitySeconds).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("failed to query latest candle for %s: %w: %w", product, ports.ErrQueryFailed, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(latest.Int64).UTC(), true, nil
}

// Products lists the distinct products stored in the archive.
func (r *Repository) Products(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT product FROM candles ORDER BY product`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var products []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w: %w", ports.ErrQueryFailed, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
