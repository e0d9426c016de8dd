// Package store persists metric aggregates to MySQL or PostgreSQL through
// database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultBatchLimit is the maximum number of rows sent in one statement.
const DefaultBatchLimit = 300

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownDriver = errors.New("store: unknown driver")
	ErrNotConfigured = errors.New("store: database not configured")
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx. Aggregators only
// see the transaction through this interface.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner starts transactions. *sql.DB and *sql.Conn satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Store renders and executes batched writes for one dialect.
type Store struct {
	dialect    Dialect
	batchLimit int
	logger     *slog.Logger
}

// New creates a Store. A non-positive batchLimit means DefaultBatchLimit.
func New(dialect Dialect, batchLimit int, logger *slog.Logger) *Store {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dialect: dialect, batchLimit: batchLimit, logger: logger}
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// BatchLimit returns the maximum number of rows per statement.
func (s *Store) BatchLimit() int {
	return s.batchLimit
}

// Upsert writes rows to t with the dialect's upsert statement. Each row
// must hold one value per column of t.
func (s *Store) Upsert(ctx context.Context, q Querier, t Table, rows [][]any) error {
	if err := s.writeBatches(ctx, q, t, rows, s.dialect.Upsert); err != nil {
		return fmt.Errorf("upsert %s: %w", t.Name, err)
	}
	return nil
}

// InsertIgnore writes rows to t skipping rows whose key already exists.
func (s *Store) InsertIgnore(ctx context.Context, q Querier, t Table, rows [][]any) error {
	if err := s.writeBatches(ctx, q, t, rows, s.dialect.InsertIgnore); err != nil {
		return fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) writeBatches(ctx context.Context, q Querier, t Table, rows [][]any, build func(Table, int) string) error {
	for start := 0; start < len(rows); start += s.batchLimit {
		end := start + s.batchLimit
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		args := make([]any, 0, len(batch)*len(t.Columns))
		for _, row := range batch {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("row has %d values, want %d", len(row), len(t.Columns))
			}
			args = append(args, row...)
		}

		if _, err := q.ExecContext(ctx, build(t, len(batch)), args...); err != nil {
			return err
		}
		s.logger.Debug("Batch written",
			"table", t.Name,
			"rows", len(batch),
		)
	}
	return nil
}

// DeleteRange deletes rows of t whose time column is in [from, to).
func (s *Store) DeleteRange(ctx context.Context, q Querier, t Table, from, to int64) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s >= %s AND %s < %s",
		t.Name, t.TimeColumn, s.dialect.Placeholder(1), t.TimeColumn, s.dialect.Placeholder(2))

	res, err := q.ExecContext(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", t.Name, err)
	}
	// Not every driver reports affected rows; the count is informational.
	n, _ := res.RowsAffected()
	return n, nil
}

// EntryIDs returns the identifiers stored in an entry table for one day.
func (s *Store) EntryIDs(ctx context.Context, q Querier, t Table, day int64) ([]int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		t.Columns[1], t.Name, t.TimeColumn, s.dialect.Placeholder(1))

	rows, err := q.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", t.Name, err)
	}
	return ids, nil
}

// DayCount returns the stored count of a summary table for one day, or
// zero when no row exists.
func (s *Store) DayCount(ctx context.Context, q Querier, t Table, day int64) (int64, error) {
	query := fmt.Sprintf("SELECT count FROM %s WHERE %s = %s",
		t.Name, t.TimeColumn, s.dialect.Placeholder(1))

	var count int64
	err := q.QueryRowContext(ctx, query, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", t.Name, err)
	}
	return count, nil
}

// SumByTime sums src.count per time bucket over rows whose dimension column
// is one of values and whose time lies in [from, to). The result maps time
// bucket to sum.
func (s *Store) SumByTime(ctx context.Context, q Querier, src Table, dimension string, values []string, from, to int64) (map[int64]int64, error) {
	sums := make(map[int64]int64)
	if len(values) == 0 {
		return sums, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, SUM(count) FROM %s WHERE %s IN (%s) AND %s >= %s AND %s < %s GROUP BY %s",
		src.TimeColumn, src.Name, dimension, placeholders(s.dialect, 1, len(values)),
		src.TimeColumn, s.dialect.Placeholder(len(values)+1),
		src.TimeColumn, s.dialect.Placeholder(len(values)+2),
		src.TimeColumn)

	args := make([]any, 0, len(values)+2)
	for _, v := range values {
		args = append(args, v)
	}
	args = append(args, from, to)

	rows, err := q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sum %s: %w", src.Name, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bucket, sum int64
		if err := rows.Scan(&bucket, &sum); err != nil {
			return nil, fmt.Errorf("scan %s: %w", src.Name, err)
		}
		sums[bucket] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sum %s: %w", src.Name, err)
	}
	return sums, nil
}
