package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ResultSet is a tabular query result. Values are JSON-friendly: integers are
// int64, decimals float64, timestamps RFC 3339 strings.
type ResultSet struct {
	Headers   []string `json:"headers"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// ExecutionError is returned when the database rejects or aborts a statement.
type ExecutionError struct {
	SQL  string
	Code string
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query execution failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Query runs sql in a read-only transaction bounded by the statement timeout.
func (s *Store) Query(ctx context.Context, sql string) (ResultSet, error) {
	start := time.Now()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return ResultSet{}, fmt.Errorf("%w: failed to begin transaction: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", s.cfg.StatementTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return ResultSet{}, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return ResultSet{}, executionError(sql, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := ResultSet{Headers: make([]string, len(fields)), Rows: [][]any{}}
	for i, f := range fields {
		result.Headers[i] = f.Name
	}

	for rows.Next() {
		if len(result.Rows) >= s.cfg.MaxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return ResultSet{}, executionError(sql, err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ResultSet{}, executionError(sql, err)
	}

	MetricQueryDuration.Observe(time.Since(start).Seconds())
	MetricQueryRows.Observe(float64(len(result.Rows)))
	s.log.Debug("store: query executed", "rows", len(result.Rows), "truncated", result.Truncated, "duration", time.Since(start))
	return result, nil
}

func executionError(sql string, err error) error {
	MetricQueryErrors.Inc()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ExecutionError{SQL: sql, Code: pgErr.Code, Err: err}
	}
	return &ExecutionError{SQL: sql, Err: err}
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return val
	}
}
