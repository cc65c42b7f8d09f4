package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/malbeclabs/sportsql/pkg/store"
)

const maxFormattedRows = 50

// formatValue renders one cell for a prompt. Floats are rounded to 2
// decimals; long values are truncated.
func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if utf8.RuneCountInString(s) > 100 {
			s = string([]rune(s)[:97]) + "..."
		}
		return s
	}
}

// FormatResult renders a result set as pipe-separated text for a prompt.
func FormatResult(rs store.ResultSet) string {
	if len(rs.Rows) == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(rs.Headers, " | "))
	fmt.Fprintf(&sb, "Rows (%d total):\n", len(rs.Rows))
	for i, row := range rs.Rows {
		if i == maxFormattedRows {
			break
		}
		values := make([]string, len(row))
		for j, v := range row {
			values[j] = formatValue(v)
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}
	if len(rs.Rows) > maxFormattedRows {
		fmt.Fprintf(&sb, "... and %d more rows\n", len(rs.Rows)-maxFormattedRows)
	}
	if rs.Truncated {
		sb.WriteString("(result truncated by the row limit)\n")
	}
	return sb.String()
}

// FormatExecution renders a sub-question outcome for a prompt.
func FormatExecution(e Execution) string {
	if !e.Success {
		return fmt.Sprintf("Error: %s", e.Error)
	}
	if e.Data == nil {
		return FormatResult(store.ResultSet{})
	}
	return FormatResult(*e.Data)
}
