package viz

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/malbeclabs/sportsql/pkg/store"
)

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// Renderer writes Vega-Lite documents into a directory served under a URL
// prefix.
type Renderer struct {
	dir    string
	prefix string
}

func NewRenderer(dir, prefix string) (*Renderer, error) {
	if dir == "" {
		return nil, errors.New("plots directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plots directory: %w", err)
	}
	return &Renderer{dir: dir, prefix: prefix}, nil
}

// Save renders spec over rs and returns the public path of the document.
func (r *Renderer) Save(spec Spec, rs store.ResultSet) (string, error) {
	doc, err := Render(spec, rs)
	if err != nil {
		return "", err
	}
	name := uuid.NewString() + ".vl.json"
	if err := os.WriteFile(filepath.Join(r.dir, name), doc, 0o644); err != nil {
		return "", fmt.Errorf("failed to write plot: %w", err)
	}
	return r.prefix + "/" + name, nil
}

// Render builds the Vega-Lite document for spec over rs.
func Render(spec Spec, rs store.ResultSet) ([]byte, error) {
	if err := validate(spec, rs); err != nil {
		return nil, err
	}

	values := make([]map[string]any, len(rs.Rows))
	for i, row := range rs.Rows {
		rec := make(map[string]any, len(rs.Headers))
		for j, h := range rs.Headers {
			if j < len(row) {
				rec[h] = row[j]
			}
		}
		values[i] = rec
	}

	types := make(map[string]columnType, len(rs.Headers))
	for i, t := range columnTypes(rs) {
		types[rs.Headers[i]] = t
	}

	doc := map[string]any{
		"$schema": vegaLiteSchema,
		"title":   spec.Title,
		"data":    map[string]any{"values": values},
		"width":   "container",
	}

	tooltip := make([]map[string]any, 0, len(rs.Headers))
	for _, h := range rs.Headers {
		tooltip = append(tooltip, map[string]any{"field": h, "type": vegaType(types[h])})
	}

	x := map[string]any{"field": spec.X, "type": vegaType(types[spec.X])}
	if types[spec.X] == columnText {
		x["sort"] = nil
	}
	y := map[string]any{"field": spec.Y[0], "type": "quantitative"}
	multi := len(spec.Y) > 1

	switch spec.Kind {
	case KindBar, KindLine, KindStackedArea:
		mark := map[string]any{"type": string(spec.Kind), "tooltip": true}
		switch spec.Kind {
		case KindLine:
			mark["point"] = true
		case KindStackedArea:
			mark["type"] = "area"
		}
		doc["mark"] = mark
		enc := map[string]any{"x": x, "y": y, "tooltip": tooltip}
		if multi || spec.Kind == KindStackedArea {
			doc["transform"] = []map[string]any{{"fold": spec.Y, "as": []string{"series", "value"}}}
			enc["y"] = map[string]any{"field": "value", "type": "quantitative"}
			enc["color"] = map[string]any{"field": "series", "type": "nominal"}
			if spec.Kind == KindStackedArea {
				enc["y"].(map[string]any)["stack"] = "zero"
			}
			if spec.Kind == KindBar {
				enc["xOffset"] = map[string]any{"field": "series"}
			}
			delete(enc, "tooltip")
		}
		doc["encoding"] = enc
	case KindScatter:
		doc["mark"] = map[string]any{"type": "point", "tooltip": true}
		doc["encoding"] = map[string]any{"x": x, "y": y, "tooltip": tooltip}
	case KindPie:
		doc["mark"] = map[string]any{"type": "arc", "tooltip": true}
		doc["encoding"] = map[string]any{
			"theta": y,
			"color": map[string]any{"field": spec.X, "type": "nominal"},
		}
	case KindBoxplot:
		doc["mark"] = map[string]any{"type": "boxplot"}
		enc := map[string]any{"y": y}
		if spec.X != "" {
			enc["x"] = map[string]any{"field": spec.X, "type": "nominal"}
		}
		doc["encoding"] = enc
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode plot: %w", err)
	}
	return out, nil
}

func vegaType(t columnType) string {
	switch t {
	case columnNumeric:
		return "quantitative"
	case columnTemporal:
		return "temporal"
	default:
		return "nominal"
	}
}
