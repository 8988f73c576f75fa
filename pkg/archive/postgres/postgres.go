// Package postgres provides the optional long-term archive for debit records.
// The rotating CSV cache keeps only the current snapshot; the archive keeps
// every record ever extracted.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymurata/debitwatch/pkg/api"
)

//go:embed 001_create_debits.sql
var migrationSQL string

// Config holds the archive database configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Archive stores debit records in a PostgreSQL database.
type Archive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to the database and runs migrations.
func New(cfg Config, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL archive",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	a := &Archive{pool: pool, logger: logger}

	if err := a.runMigrations(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return a, nil
}

func (a *Archive) runMigrations(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	a.logger.Debug("archive migrations completed")
	return nil
}

// Store upserts records keyed by their dedup key. Re-archiving the same
// snapshot is a no-op apart from updated_at. It returns the number of records
// written.
func (a *Archive) Store(ctx context.Context, records []api.DebitRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO debits (dedup_key, year_month, payee, amount, email_id)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			ON CONFLICT (dedup_key) DO UPDATE SET
				year_month = EXCLUDED.year_month,
				payee = EXCLUDED.payee,
				amount = EXCLUDED.amount,
				email_id = EXCLUDED.email_id,
				updated_at = NOW()
		`,
			r.Key(), r.YearMonth, r.Payee, r.Amount, r.EmailID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("archiving record %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	a.logger.Info("archived records", "count", len(records))
	return len(records), nil
}

// MonthTotals returns the archived total per year-month, oldest first.
func (a *Archive) MonthTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT year_month, SUM(amount)
		FROM debits
		GROUP BY year_month
		ORDER BY year_month
	`)
	if err != nil {
		return nil, fmt.Errorf("querying month totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var month string
		var total int64
		if err := rows.Scan(&month, &total); err != nil {
			return nil, fmt.Errorf("scanning month total: %w", err)
		}
		totals[month] = total
	}
	return totals, rows.Err()
}

// Close closes the database connection pool.
func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.logger.Debug("closed PostgreSQL connection pool")
	}
}
