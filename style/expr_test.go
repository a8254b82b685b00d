package style

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvalCompare(t *testing.T) {
	tests := []struct {
		name string
		expr []any
		meta map[string]any
		want any
	}{
		{
			name: "equal string match",
			expr: []any{"==", "class", "motorway"},
			meta: map[string]any{"class": "motorway"},
			want: true,
		},
		{
			name: "equal string mismatch",
			expr: []any{"==", "class", "motorway"},
			meta: map[string]any{"class": "residential"},
			want: false,
		},
		{
			name: "not equal",
			expr: []any{"!=", "class", "motorway"},
			meta: map[string]any{"class": "residential"},
			want: true,
		},
		{
			name: "missing key compares as empty string",
			expr: []any{"==", "class", ""},
			meta: map[string]any{},
			want: true,
		},
		{
			name: "numeric kinds normalize",
			expr: []any{"==", "admin_level", float64(2)},
			meta: map[string]any{"admin_level": int64(2)},
			want: true,
		},
		{
			name: "geometry type sentinel",
			expr: []any{"==", []any{"$type"}, "Polygon"},
			meta: nil,
			want: true,
		},
		{
			name: "geometry type sentinel mismatch",
			expr: []any{"==", []any{"$type"}, "Point"},
			meta: nil,
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, "Polygon", tc.meta, 5, 5.0)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalIn(t *testing.T) {
	meta := map[string]any{"class": "river"}

	tests := []struct {
		name string
		expr []any
		want any
	}{
		{"member", []any{"in", "class", "river", "stream"}, true},
		{"not member", []any{"in", "class", "lake", "ocean"}, false},
		{"missing key", []any{"in", "waterway", "river"}, false},
		{"negated", []any{"!in", "class", "lake"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, "LineString", meta, 5, 5.0)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalAll(t *testing.T) {
	meta := map[string]any{"class": "ocean", "intermittent": true}

	t.Run("all true", func(t *testing.T) {
		expr := []any{"all",
			[]any{"==", "class", "ocean"},
			[]any{"has", "intermittent"},
		}
		got, err := Eval(expr, "Polygon", meta, 5, 5.0)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != true {
			t.Errorf("Eval = %v, want true", got)
		}
	})

	t.Run("short circuits on false", func(t *testing.T) {
		// The second operand is malformed; it must never be reached.
		expr := []any{"all",
			[]any{"==", "class", "lake"},
			[]any{"bogus-op"},
		}
		got, err := Eval(expr, "Polygon", meta, 5, 5.0)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != false {
			t.Errorf("Eval = %v, want false", got)
		}
	})
}

func TestEvalGetHas(t *testing.T) {
	meta := map[string]any{"name": "Oslo", "rank": int64(3)}

	tests := []struct {
		name string
		expr []any
		want any
	}{
		{"get present", []any{"get", "name"}, "Oslo"},
		{"get absent", []any{"get", "elevation"}, nil},
		{"has present", []any{"has", "rank"}, true},
		{"has absent", []any{"has", "elevation"}, false},
		{"negated has", []any{"!has", "elevation"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, "Point", meta, 5, 5.0)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalMatch(t *testing.T) {
	meta := map[string]any{"class": "wood"}

	tests := []struct {
		name string
		expr []any
		want any
	}{
		{
			name: "single label",
			expr: []any{"match", []any{"get", "class"},
				"wood", "green",
				"sand", "yellow",
				"gray"},
			want: "green",
		},
		{
			name: "label list",
			expr: []any{"match", []any{"get", "class"},
				[]any{"grass", "wood"}, "green",
				"gray"},
			want: "green",
		},
		{
			name: "fallback",
			expr: []any{"match", []any{"get", "class"},
				"sand", "yellow",
				"gray"},
			want: "gray",
		},
		{
			name: "expression output",
			expr: []any{"match", []any{"get", "class"},
				"wood", []any{"get", "class"},
				"gray"},
			want: "wood",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, "Polygon", meta, 5, 5.0)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalCaseCoalesce(t *testing.T) {
	meta := map[string]any{"class": "ocean"}

	t.Run("case first true branch", func(t *testing.T) {
		expr := []any{"case",
			[]any{"==", "class", "ocean"}, "blue",
			"gray"}
		got, err := Eval(expr, "Polygon", meta, 5, 5.0)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != "blue" {
			t.Errorf("Eval = %v, want blue", got)
		}
	})

	t.Run("case fallback", func(t *testing.T) {
		expr := []any{"case",
			[]any{"==", "class", "lake"}, "blue",
			"gray"}
		got, err := Eval(expr, "Polygon", meta, 5, 5.0)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != "gray" {
			t.Errorf("Eval = %v, want gray", got)
		}
	})

	t.Run("coalesce skips null", func(t *testing.T) {
		expr := []any{"coalesce",
			[]any{"get", "missing"},
			[]any{"get", "class"}}
		got, err := Eval(expr, "Polygon", meta, 5, 5.0)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != "ocean" {
			t.Errorf("Eval = %v, want ocean", got)
		}
	})
}

func TestEvalGreater(t *testing.T) {
	meta := map[string]any{"rank": int64(4), "name": "b"}

	tests := []struct {
		name string
		expr []any
		want any
	}{
		{"numeric true", []any{">", []any{"get", "rank"}, float64(3)}, true},
		{"numeric false", []any{">", []any{"get", "rank"}, float64(4)}, false},
		{"string compare", []any{">", []any{"get", "name"}, "a"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, "Point", meta, 5, 5.0)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalInterpolate(t *testing.T) {
	expr := []any{"interpolate", []any{"linear"}, []any{"zoom"},
		float64(4), float64(0),
		float64(8), float64(2)}

	tests := []struct {
		name    string
		mapZoom int
		want    float64
	}{
		{"clamp below", 2, 0},
		{"lower stop", 4, 0},
		{"midpoint", 6, 1},
		{"upper stop", 8, 2},
		{"clamp above", 12, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(expr, "Polygon", nil, tc.mapZoom, float64(tc.mapZoom))
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string
		expr []any
	}{
		{"empty", []any{}},
		{"non-string operator", []any{float64(3)}},
		{"unknown operator", []any{"bogus"}},
		{"compare arity", []any{"==", "class"}},
		{"in arity", []any{"in", "class"}},
		{"get arity", []any{"get"}},
		{"negated non-bool", []any{"!get", "class"}},
		{"all non-expression operand", []any{"all", "class"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Eval(tc.expr, "Polygon", map[string]any{"class": "x"}, 5, 5.0)
			if !errors.Is(err, ErrBadExpression) {
				t.Errorf("Eval error = %v, want ErrBadExpression", err)
			}
		})
	}
}

func TestEvalFilter(t *testing.T) {
	meta := map[string]any{"class": "motorway"}

	tests := []struct {
		name string
		expr []any
		want bool
	}{
		{"matching filter", []any{"==", "class", "motorway"}, true},
		{"non-matching filter", []any{"==", "class", "residential"}, false},
		{"malformed filter drops feature", []any{"bogus"}, false},
		{"non-bool result drops feature", []any{"get", "class"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvalFilter(tc.expr, "LineString", meta, 5, 5.0); got != tc.want {
				t.Errorf("EvalFilter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStopOutput(t *testing.T) {
	stops := []Stop{{Zoom: 0, Value: "a"}, {Zoom: 10, Value: "b"}, {Zoom: 14, Value: "c"}}

	tests := []struct {
		zoom int
		want string
	}{
		{0, "a"},
		{5, "a"},
		{10, "b"},
		{11, "b"},
		{14, "c"},
		{15, "c"},
	}
	for _, tc := range tests {
		if got := stopOutput(stops, tc.zoom); got != tc.want {
			t.Errorf("stopOutput(zoom=%d) = %v, want %v", tc.zoom, got, tc.want)
		}
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"strings", "x", "x", true},
		{"int64 vs float64", int64(3), float64(3), true},
		{"uint64 vs float64", uint64(3), float64(3), true},
		{"float32 vs float64", float32(1.5), float64(1.5), true},
		{"bool", true, true, true},
		{"string vs number", "3", float64(3), false},
		{"nil vs nil", nil, nil, true},
		{"nil vs string", nil, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := valuesEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("valuesEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestEvalResultShape(t *testing.T) {
	got, err := Eval([]any{"get", "bounds"}, "Polygon",
		map[string]any{"bounds": []any{float64(1), float64(2)}}, 5, 5.0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if diff := cmp.Diff([]any{float64(1), float64(2)}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}
