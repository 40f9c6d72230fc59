// Package datasource loads premium records from the configured source.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/records"
	_ "github.com/lib/pq" // registers the postgres driver
	"go.uber.org/zap"
)

// Source loads premium records.
type Source interface {
	Load(ctx context.Context) ([]records.Record, error)
}

// New returns the source selected by conf.
func New(logger *zap.Logger, conf config.DataConfig) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch conf.Source {
	case constants.DataSourceCSV, "":
		return &CSVSource{Path: conf.Path, logger: logger}, nil
	case constants.DataSourcePostgres:
		return &PostgresSource{DSN: conf.DSN, Query: conf.Query, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", conf.Source)
	}
}

// CSVSource reads a CSV export from disk.
type CSVSource struct {
	Path   string
	logger *zap.Logger
}

// Load reads and parses the export.
func (s *CSVSource) Load(ctx context.Context) ([]records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer func() { _ = f.Close() }()

	recs, err := records.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Path, err)
	}
	if s.logger != nil {
		s.logger.Debug("loaded records",
			zap.String("op", "datasource.CSVSource.Load"),
			zap.String("path", s.Path),
			zap.Int("records", len(recs)),
		)
	}
	return recs, nil
}

// PostgresSource reads records with a query returning, in order, the record
// date, business line, premium amount and budget amount. Amount and budget
// may be NULL.
type PostgresSource struct {
	DSN    string
	Query  string
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSource wraps an open database handle.
func NewPostgresSource(logger *zap.Logger, db *sql.DB, query string) *PostgresSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSource{Query: query, db: db, logger: logger}
}

// Load runs the query, opening a connection from DSN when no handle was
// supplied.
func (s *PostgresSource) Load(ctx context.Context) ([]records.Record, error) {
	db := s.db
	if db == nil {
		var err error
		db, err = sql.Open("postgres", s.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()
	}

	rows, err := db.QueryContext(ctx, s.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("loaded records",
			zap.String("op", "datasource.PostgresSource.Load"),
			zap.Int("records", len(recs)),
		)
	}
	return recs, nil
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowIterator) ([]records.Record, error) {
	var out []records.Record
	for rows.Next() {
		var (
			date   sql.NullTime
			line   sql.NullString
			amount sql.NullFloat64
			budget sql.NullFloat64
		)
		if err := rows.Scan(&date, &line, &amount, &budget); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if !date.Valid {
			continue
		}
		rec := records.Record{
			Date: datetime.MonthStart(date.Time.In(time.UTC)),
			Line: line.String,
		}
		if amount.Valid {
			rec.Amount = records.Float(amount.Float64)
		}
		if budget.Valid {
			rec.Budget = records.Float(budget.Float64)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return out, nil
}
