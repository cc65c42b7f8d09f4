// Package viz picks a chart for a result set and renders it as a Vega-Lite
// document.
package viz

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/malbeclabs/sportsql/pkg/store"
)

type Kind string

const (
	KindBar         Kind = "bar"
	KindLine        Kind = "line"
	KindScatter     Kind = "scatter"
	KindPie         Kind = "pie"
	KindBoxplot     Kind = "boxplot"
	KindStackedArea Kind = "stacked_area"
)

var kinds = []Kind{KindBar, KindLine, KindScatter, KindPie, KindBoxplot, KindStackedArea}

// Kinds returns the supported chart kinds.
func Kinds() []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func validKind(k Kind) bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrNoVisualization is returned when there is nothing meaningful to draw.
// It is an outcome, not a failure.
var ErrNoVisualization = errors.New("no visualization for this result")

// Spec is a chart choice bound to result columns.
type Spec struct {
	Kind  Kind     `json:"chart"`
	X     string   `json:"x"`
	Y     []string `json:"y"`
	Title string   `json:"title"`
}

type columnType string

const (
	columnNumeric  columnType = "numeric"
	columnTemporal columnType = "temporal"
	columnText     columnType = "text"
	columnBoolean  columnType = "boolean"
	columnEmpty    columnType = "null"
)

var rfc3339Re = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// columnTypes infers a type per column from the non-null values.
func columnTypes(rs store.ResultSet) []columnType {
	types := make([]columnType, len(rs.Headers))
	for i := range rs.Headers {
		t := columnEmpty
		for _, row := range rs.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			var vt columnType
			switch v := row[i].(type) {
			case int, int32, int64, float32, float64:
				vt = columnNumeric
			case bool:
				vt = columnBoolean
			case string:
				if rfc3339Re.MatchString(v) {
					vt = columnTemporal
				} else {
					vt = columnText
				}
			default:
				vt = columnText
			}
			if t == columnEmpty {
				t = vt
			} else if t != vt {
				t = columnText
				break
			}
		}
		types[i] = t
	}
	return types
}

// DescribeShape renders the column names, inferred types and row count for
// the chart selection prompt.
func DescribeShape(rs store.ResultSet) string {
	var sb strings.Builder
	types := columnTypes(rs)
	fmt.Fprintf(&sb, "rows: %d\ncolumns:\n", len(rs.Rows))
	for i, h := range rs.Headers {
		fmt.Fprintf(&sb, "  - %s (%s)\n", h, types[i])
	}
	return sb.String()
}

// drawable reports whether the result has anything worth plotting.
func drawable(rs store.ResultSet) bool {
	if len(rs.Rows) == 0 || len(rs.Headers) == 0 {
		return false
	}
	if len(rs.Rows) == 1 && len(rs.Headers) == 1 {
		return false
	}
	for _, t := range columnTypes(rs) {
		if t == columnNumeric {
			return true
		}
	}
	return false
}

// validate checks spec against the result columns.
func validate(spec Spec, rs store.ResultSet) error {
	if !validKind(spec.Kind) {
		return fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}
	types := make(map[string]columnType, len(rs.Headers))
	for i, t := range columnTypes(rs) {
		types[rs.Headers[i]] = t
	}
	if spec.X == "" && spec.Kind != KindBoxplot {
		return errors.New("x is required")
	}
	if spec.X != "" {
		if _, ok := types[spec.X]; !ok {
			return fmt.Errorf("unknown x column %q", spec.X)
		}
	}
	if len(spec.Y) == 0 {
		return errors.New("y is required")
	}
	for _, y := range spec.Y {
		t, ok := types[y]
		if !ok {
			return fmt.Errorf("unknown y column %q", y)
		}
		if t != columnNumeric {
			return fmt.Errorf("y column %q is not numeric", y)
		}
	}
	switch spec.Kind {
	case KindPie:
		if len(spec.Y) != 1 {
			return errors.New("pie charts take exactly one y column")
		}
	case KindScatter:
		if types[spec.X] != columnNumeric {
			return fmt.Errorf("scatter x column %q is not numeric", spec.X)
		}
	}
	return nil
}

// fallback is a bar chart over the first column and the first numeric column
// after it.
func fallback(question string, rs store.ResultSet) (Spec, error) {
	types := columnTypes(rs)
	if len(rs.Headers) == 1 {
		if types[0] == columnNumeric {
			return Spec{Kind: KindBoxplot, Y: []string{rs.Headers[0]}, Title: question}, nil
		}
		return Spec{}, ErrNoVisualization
	}
	for i := 1; i < len(rs.Headers); i++ {
		if types[i] == columnNumeric {
			return Spec{Kind: KindBar, X: rs.Headers[0], Y: []string{rs.Headers[i]}, Title: question}, nil
		}
	}
	return Spec{}, ErrNoVisualization
}
