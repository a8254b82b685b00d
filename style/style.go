// Package style parses Mapbox-style sheets and evaluates their filter
// and paint expressions.
//
// A sheet is a list of layer styles in document order. Each layer style
// selects features from one source layer (optionally narrowed by a filter
// expression) and assigns paint. Paint properties come in three shapes: a
// literal, zoom stops, or an expression resolved per feature. Stops use
// step-wise lookup that returns the previous stop's value rather than
// interpolating between stops.
package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrBadStyle is returned when the style document has the wrong shape.
var ErrBadStyle = errors.New("style: bad style document")

// LayerType discriminates the layer style variants.
type LayerType int

// Layer style variants. Layer types the renderer does not draw parse as
// NotImplemented and are skipped at compose time.
const (
	Background LayerType = iota + 1
	Fill
	NotImplemented
)

// String returns the document name of the layer type.
func (t LayerType) String() string {
	switch t {
	case Background:
		return "background"
	case Fill:
		return "fill"
	default:
		return "not-implemented"
	}
}

// Sheet is a parsed style sheet. It owns its layer styles.
type Sheet struct {
	ID      string
	Version int
	Name    string
	Layers  []*Layer
}

// Layer is one layer style: a common header plus a type-specific paint
// variant. Background is non-nil for background layers and Fill for fill
// layers; both are nil for NotImplemented layers.
type Layer struct {
	ID          string
	Source      string
	SourceLayer string

	// MinZoom and MaxZoom bound the map zooms this layer draws at.
	MinZoom int
	MaxZoom int

	// Visible is the layout visibility flag.
	Visible bool

	// Filter is the optional filter expression, stored verbatim.
	Filter []any

	Type       LayerType
	Background *BackgroundPaint
	Fill       *FillPaint
}

// Active reports whether the layer draws at the given map zoom. The max
// zoom bound is exclusive, the min zoom bound inclusive.
func (l *Layer) Active(mapZoom int) bool {
	return l.Visible && mapZoom < l.MaxZoom && mapZoom >= l.MinZoom
}

// BackgroundPaint holds the paint of a background layer.
type BackgroundPaint struct {
	Color Prop
}

// ColorAt resolves the background color for a map zoom. Backgrounds have
// no feature context, so expressions evaluate against empty metadata.
// Missing or failed values fall back to opaque black.
func (p *BackgroundPaint) ColorAt(mapZoom int, vpZoom float64) RGBA {
	v := p.Color.resolve("", nil, mapZoom, vpZoom)
	if c, ok := colorValue(v); ok {
		return c
	}
	return Black
}

// FillPaint holds the paint of a fill layer.
type FillPaint struct {
	Color        Prop
	Opacity      Prop
	OutlineColor Prop
	Translate    Prop

	// Antialias gates outline drawing.
	Antialias bool
}

// ColorAt resolves the fill color for one feature. Missing or failed
// values fall back to opaque black.
func (p *FillPaint) ColorAt(geomType string, meta map[string]any, mapZoom int, vpZoom float64) RGBA {
	v := p.Color.resolve(geomType, meta, mapZoom, vpZoom)
	if c, ok := colorValue(v); ok {
		return c
	}
	return Black
}

// OpacityAt resolves the fill opacity for one feature. Missing or
// non-numeric values fall back to 1.
func (p *FillPaint) OpacityAt(geomType string, meta map[string]any, mapZoom int, vpZoom float64) float64 {
	v := p.Opacity.resolve(geomType, meta, mapZoom, vpZoom)
	if f, ok := toFloat(v); ok {
		return f
	}
	return 1
}

// OutlineColorAt resolves the outline color for one feature. The second
// result is false when the layer draws no outline: antialiasing off, the
// property absent, or resolution failed.
func (p *FillPaint) OutlineColorAt(geomType string, meta map[string]any, mapZoom int, vpZoom float64) (RGBA, bool) {
	if !p.Antialias {
		return RGBA{}, false
	}
	v := p.OutlineColor.resolve(geomType, meta, mapZoom, vpZoom)
	if v == nil {
		return RGBA{}, false
	}
	return colorValue(v)
}

// TranslateAt resolves the fill translation in tile-local units. Missing
// or failed values fall back to no translation.
func (p *FillPaint) TranslateAt(geomType string, meta map[string]any, mapZoom int, vpZoom float64) [2]float64 {
	v := p.Translate.resolve(geomType, meta, mapZoom, vpZoom)
	if t, ok := v.([2]float64); ok {
		return t
	}
	return [2]float64{}
}

// Load parses a style sheet from its JSON encoding.
func Load(data []byte) (*Sheet, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("style: parse: %w", err)
	}

	sheet := &Sheet{
		ID:   docString(doc, "id"),
		Name: docString(doc, "name"),
	}
	if v, ok := toFloat(doc["version"]); ok {
		sheet.Version = int(v)
	}

	layers, ok := doc["layers"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing layers array", ErrBadStyle)
	}
	for i, raw := range layers {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: layer %d is %T, not object", ErrBadStyle, i, raw)
		}
		layer, err := parseLayer(obj)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, docString(obj, "id"), err)
		}
		sheet.Layers = append(sheet.Layers, layer)
	}
	return sheet, nil
}

// LoadFile parses a style sheet from a file.
func LoadFile(path string) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("style: read %s: %w", path, err)
	}
	return Load(data)
}

func docString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func parseLayer(obj map[string]any) (*Layer, error) {
	layer := &Layer{
		ID:          docString(obj, "id"),
		Source:      docString(obj, "source"),
		SourceLayer: docString(obj, "source-layer"),
		MinZoom:     0,
		MaxZoom:     24,
		Visible:     true,
	}
	if v, ok := toFloat(obj["minzoom"]); ok {
		layer.MinZoom = int(v)
	}
	if v, ok := toFloat(obj["maxzoom"]); ok {
		layer.MaxZoom = int(v)
	}

	if layout, ok := obj["layout"].(map[string]any); ok {
		if raw, present := layout["visibility"]; present {
			vis, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: visibility is %T, not string", ErrBadStyle, raw)
			}
			switch vis {
			case "visible":
				layer.Visible = true
			case "none":
				layer.Visible = false
			default:
				return nil, fmt.Errorf("%w: visibility %q", ErrBadStyle, vis)
			}
		}
	}

	if raw, present := obj["filter"]; present {
		filter, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: filter is %T, not array", ErrBadStyle, raw)
		}
		layer.Filter = filter
	}

	typeName, ok := obj["type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing layer type", ErrBadStyle)
	}

	paint, _ := obj["paint"].(map[string]any)

	var err error
	switch typeName {
	case "background":
		layer.Type = Background
		layer.Background, err = parseBackgroundPaint(paint)
	case "fill":
		layer.Type = Fill
		layer.Fill, err = parseFillPaint(paint)
	default:
		layer.Type = NotImplemented
	}
	if err != nil {
		return nil, err
	}
	return layer, nil
}

func parseBackgroundPaint(paint map[string]any) (*BackgroundPaint, error) {
	p := &BackgroundPaint{}
	if raw, present := paint["background-color"]; present {
		prop, err := parseColorProp(raw)
		if err != nil {
			return nil, fmt.Errorf("background-color: %w", err)
		}
		p.Color = prop
	}
	return p, nil
}

func parseFillPaint(paint map[string]any) (*FillPaint, error) {
	p := &FillPaint{Antialias: true}

	if raw, present := paint["fill-antialias"]; present {
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: fill-antialias is %T, not bool", ErrBadStyle, raw)
		}
		p.Antialias = b
	}

	for _, entry := range []struct {
		key  string
		dst  *Prop
		kind func(any) (Prop, error)
	}{
		{"fill-color", &p.Color, parseColorProp},
		{"fill-opacity", &p.Opacity, parseNumberProp},
		{"fill-outline-color", &p.OutlineColor, parseColorProp},
		{"fill-translate", &p.Translate, parseVec2Prop},
	} {
		raw, present := paint[entry.key]
		if !present {
			continue
		}
		prop, err := entry.kind(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.dst = prop
	}
	return p, nil
}

// parseProp handles the three property shapes, delegating the literal
// leaves to value.
func parseProp(raw any, value func(any) (any, error)) (Prop, error) {
	switch v := raw.(type) {
	case map[string]any:
		rawStops, ok := v["stops"].([]any)
		if !ok {
			return Prop{}, fmt.Errorf("%w: stops object without stops array", ErrBadStyle)
		}
		stops := make([]Stop, 0, len(rawStops))
		for _, rawStop := range rawStops {
			pair, ok := rawStop.([]any)
			if !ok || len(pair) != 2 {
				return Prop{}, fmt.Errorf("%w: stop is not a [zoom, value] pair", ErrBadStyle)
			}
			zoom, ok := toFloat(pair[0])
			if !ok {
				return Prop{}, fmt.Errorf("%w: stop zoom is %T", ErrBadStyle, pair[0])
			}
			val, err := value(pair[1])
			if err != nil {
				return Prop{}, err
			}
			stops = append(stops, Stop{Zoom: int(zoom), Value: val})
		}
		return Prop{Kind: PropStops, Stops: stops}, nil

	case []any:
		return Prop{Kind: PropExpr, Expr: v}, nil

	default:
		val, err := value(raw)
		if err != nil {
			return Prop{}, err
		}
		return Prop{Kind: PropLiteral, Literal: val}, nil
	}
}

func parseColorProp(raw any) (Prop, error) {
	return parseProp(raw, func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: color is %T, not string", ErrBadStyle, v)
		}
		c, ok := ParseColor(s)
		if !ok {
			return nil, fmt.Errorf("%w: color %q", ErrBadStyle, s)
		}
		return c, nil
	})
}

func parseNumberProp(raw any) (Prop, error) {
	return parseProp(raw, func(v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: number is %T", ErrBadStyle, v)
		}
		return f, nil
	})
}

// parseVec2Prop parses 2D vector values. A literal vector is itself an
// array, so the expression shape is disambiguated by the first element:
// expressions start with a string operator.
func parseVec2Prop(raw any) (Prop, error) {
	if arr, ok := raw.([]any); ok {
		if len(arr) > 0 {
			if _, isOp := arr[0].(string); isOp {
				return Prop{Kind: PropExpr, Expr: arr}, nil
			}
		}
		v, err := parseVec2(arr)
		if err != nil {
			return Prop{}, err
		}
		return Prop{Kind: PropLiteral, Literal: v}, nil
	}
	return parseProp(raw, func(v any) (any, error) {
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: vector is %T, not array", ErrBadStyle, v)
		}
		return parseVec2(arr)
	})
}

func parseVec2(arr []any) ([2]float64, error) {
	if len(arr) != 2 {
		return [2]float64{}, fmt.Errorf("%w: vector has %d elements, want 2", ErrBadStyle, len(arr))
	}
	x, okX := toFloat(arr[0])
	y, okY := toFloat(arr[1])
	if !okX || !okY {
		return [2]float64{}, fmt.Errorf("%w: vector elements are %T, %T", ErrBadStyle, arr[0], arr[1])
	}
	return [2]float64{x, y}, nil
}
