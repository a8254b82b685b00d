package style

import "github.com/gogpu/mapview/internal/logging"

// PropKind identifies the shape of a paint property.
type PropKind int

// Paint property shapes.
const (
	// PropNone marks a property absent from the style document.
	PropNone PropKind = iota

	// PropLiteral is a single parsed value.
	PropLiteral

	// PropStops is an ascending sequence of (zoom, value) pairs.
	PropStops

	// PropExpr is an expression resolved at query time.
	PropExpr
)

// Stop is one (zoom, value) pair of a stops property.
type Stop struct {
	Zoom  int
	Value any
}

// Prop is a paint property in one of its three document shapes. The zero
// value is an absent property; each paint accessor substitutes its
// documented default.
type Prop struct {
	Kind    PropKind
	Literal any
	Stops   []Stop
	Expr    []any
}

// stopOutput picks the stop value for zoom using upper-bound search that
// returns the previous stop. A zoom at or below the first stop yields the
// first value; one at or beyond the last stop yields the last. The stops
// must be sorted ascending and non-empty.
func stopOutput(stops []Stop, zoom int) any {
	if zoom <= stops[0].Zoom {
		return stops[0].Value
	}
	for i := 1; i < len(stops); i++ {
		if zoom < stops[i].Zoom {
			return stops[i-1].Value
		}
	}
	return stops[len(stops)-1].Value
}

// resolve reduces the property to a concrete value for one feature.
// Returns nil for an absent property or a failed expression.
func (p *Prop) resolve(geomType string, meta map[string]any, mapZoom int, vpZoom float64) any {
	switch p.Kind {
	case PropLiteral:
		return p.Literal
	case PropStops:
		if len(p.Stops) == 0 {
			return nil
		}
		return stopOutput(p.Stops, mapZoom)
	case PropExpr:
		res, err := Eval(p.Expr, geomType, meta, mapZoom, vpZoom)
		if err != nil {
			logging.Logger().Warn("paint expression failed", "err", err)
			return nil
		}
		return res
	default:
		return nil
	}
}

// colorValue coerces a resolved property value to a color. Expression
// results may be either an already parsed color or a color string.
func colorValue(v any) (RGBA, bool) {
	switch c := v.(type) {
	case RGBA:
		return c, true
	case string:
		return ParseColor(c)
	default:
		return RGBA{}, false
	}
}
