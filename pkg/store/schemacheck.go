package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/malbeclabs/sportsql/pkg/schema"
)

// ErrSchemaDrift matches every DriftError.
var ErrSchemaDrift = errors.New("schema drift")

// DriftError lists differences between the documented schema and the live
// database.
type DriftError struct {
	Problems []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("schema drift: %s", strings.Join(e.Problems, "; "))
}

func (e *DriftError) Is(target error) bool {
	return target == ErrSchemaDrift
}

// CheckSchema compares the live public schema with the documented tables.
func (s *Store) CheckSchema(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'`)
	if err != nil {
		return fmt.Errorf("%w: failed to read information_schema: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	live := make(map[string]map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		if live[table] == nil {
			live[table] = make(map[string]string)
		}
		live[table][column] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	if problems := diffSchema(schema.Tables, live); len(problems) > 0 {
		return &DriftError{Problems: problems}
	}
	return nil
}

func diffSchema(documented []schema.Table, live map[string]map[string]string) []string {
	var problems []string
	for _, t := range documented {
		cols, ok := live[t.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("table %s is missing", t.Name))
			continue
		}
		for _, c := range t.Columns {
			got, ok := cols[c.Name]
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("column %s.%s is missing", t.Name, c.Name))
			case got != c.Type:
				problems = append(problems, fmt.Sprintf("column %s.%s is %s, documented as %s", t.Name, c.Name, got, c.Type))
			}
		}
		var extra []string
		for name := range cols {
			if !t.HasColumn(name) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			problems = append(problems, fmt.Sprintf("column %s.%s is not documented", t.Name, name))
		}
	}
	return problems
}
