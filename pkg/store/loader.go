package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/sportsql/pkg/schema"
)

// refreshLockKey is the pg advisory lock key held for the duration of a
// refresh so that replicas sharing the database do not refresh concurrently.
const refreshLockKey int64 = 0x5350_4f52_5453 // "SPORTS"

// ErrLocked is returned by TryLock when another session holds the lock.
var ErrLocked = errors.New("refresh lock held by another session")

// Row is one record keyed by column name. Columns missing from the map load
// as NULL.
type Row map[string]any

// TableData is the full replacement content of one documented table.
type TableData struct {
	Table string
	Rows  []Row
}

// TryLock takes the cross-process refresh lock. The returned release func
// must be called to free it.
func (s *Store) TryLock(ctx context.Context) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to acquire connection: %v", ErrUnavailable, err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", refreshLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", refreshLockKey); err != nil {
			s.log.Warn("store: failed to release advisory lock", "error", err)
		}
		conn.Release()
	}, nil
}

// ReplaceAll loads each table into a staging copy and swaps all of them in
// a single transaction. Readers see either the old or the new data.
func (s *Store) ReplaceAll(ctx context.Context, data []TableData) error {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, td := range data {
		table, ok := schema.Lookup(td.Table)
		if !ok {
			return fmt.Errorf("unknown table %q", td.Table)
		}
		staging := table.Name + "_staging"
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{staging}.Sanitize())); err != nil {
			return fmt.Errorf("failed to drop stale staging table %s: %w", staging, err)
		}
		create := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)",
			pgx.Identifier{staging}.Sanitize(), pgx.Identifier{table.Name}.Sanitize())
		if _, err := tx.Exec(ctx, create); err != nil {
			return fmt.Errorf("failed to create staging table %s: %w", staging, err)
		}
		n, err := copyRows(ctx, tx, staging, table, td.Rows)
		if err != nil {
			return err
		}
		s.log.Debug("store: staged table", "table", table.Name, "rows", n)
	}

	for _, td := range data {
		old := td.Table + "_old"
		stmts := []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{old}.Sanitize()),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pgx.Identifier{td.Table}.Sanitize(), pgx.Identifier{old}.Sanitize()),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pgx.Identifier{td.Table + "_staging"}.Sanitize(), pgx.Identifier{td.Table}.Sanitize()),
			fmt.Sprintf("DROP TABLE %s", pgx.Identifier{old}.Sanitize()),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to swap table %s: %w", td.Table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit swap: %w", err)
	}
	s.log.Info("store: tables replaced", "tables", len(data), "duration", time.Since(start))
	return nil
}

// ReplacePlayerRows replaces one player's rows in the per-player tables.
func (s *Store) ReplacePlayerRows(ctx context.Context, playerID int, data []TableData) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, td := range data {
		table, ok := schema.Lookup(td.Table)
		if !ok || !table.HasColumn("player_id") {
			return fmt.Errorf("table %q has no per-player rows", td.Table)
		}
		del := fmt.Sprintf("DELETE FROM %s WHERE player_id = $1", pgx.Identifier{table.Name}.Sanitize())
		if _, err := tx.Exec(ctx, del, playerID); err != nil {
			return fmt.Errorf("failed to clear %s for player %d: %w", table.Name, playerID, err)
		}
		if _, err := copyRows(ctx, tx, table.Name, table, td.Rows); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit player rows: %w", err)
	}
	return nil
}

func copyRows(ctx context.Context, tx pgx.Tx, target string, table schema.Table, rows []Row) (int64, error) {
	columns := table.ColumnNames()
	values := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(columns))
		for j, c := range columns {
			vals[j] = row[c]
		}
		values[i] = vals
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{target}, columns, pgx.CopyFromRows(values))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", target, err)
	}
	return n, nil
}
