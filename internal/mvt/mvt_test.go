package mvt

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

// Builders for wire-format test fixtures.

func appendValueString(b []byte, s string) []byte {
	var v []byte
	v = protowire.AppendTag(v, 1, protowire.BytesType)
	v = protowire.AppendString(v, s)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendValueDouble(b []byte, f float64) []byte {
	var v []byte
	v = protowire.AppendTag(v, 3, protowire.Fixed64Type)
	v = protowire.AppendFixed64(v, math.Float64bits(f))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendValueBool(b []byte, ok bool) []byte {
	var v []byte
	v = protowire.AppendTag(v, 7, protowire.VarintType)
	var raw uint64
	if ok {
		raw = 1
	}
	v = protowire.AppendVarint(v, raw)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendPacked(b []byte, field protowire.Number, vals []uint32) []byte {
	var raw []byte
	for _, v := range vals {
		raw = protowire.AppendVarint(raw, uint64(v))
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

func appendFeature(b []byte, geomType GeomType, tags, geom []uint32) []byte {
	var f []byte
	if tags != nil {
		f = appendPacked(f, 2, tags)
	}
	f = protowire.AppendTag(f, 3, protowire.VarintType)
	f = protowire.AppendVarint(f, uint64(geomType))
	f = appendPacked(f, 4, geom)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, f)
}

func buildTestTile(t *testing.T) []byte {
	t.Helper()

	var layer []byte
	layer = protowire.AppendTag(layer, 1, protowire.BytesType)
	layer = protowire.AppendString(layer, "water")

	layer = appendFeature(layer, GeomPolygon,
		[]uint32{0, 0, 1, 1},
		[]uint32{9, 0, 0, 26, 20, 0, 0, 20, 19, 0, 15})

	for _, k := range []string{"class", "intermittent"} {
		layer = protowire.AppendTag(layer, 3, protowire.BytesType)
		layer = protowire.AppendString(layer, k)
	}
	layer = appendValueString(layer, "ocean")
	layer = appendValueBool(layer, true)

	layer = protowire.AppendTag(layer, 5, protowire.VarintType)
	layer = protowire.AppendVarint(layer, 4096)

	var tile []byte
	tile = protowire.AppendTag(tile, 3, protowire.BytesType)
	tile = protowire.AppendBytes(tile, layer)
	return tile
}

func TestDecodeTile(t *testing.T) {
	tile, err := DecodeTile(buildTestTile(t))
	if err != nil {
		t.Fatalf("DecodeTile: %v", err)
	}
	if len(tile.Layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(tile.Layers))
	}

	layer := tile.Layers[0]
	if layer.Name != "water" {
		t.Errorf("layer name = %q, want %q", layer.Name, "water")
	}
	if layer.Extent != 4096 {
		t.Errorf("extent = %d, want 4096", layer.Extent)
	}
	if diff := cmp.Diff([]string{"class", "intermittent"}, layer.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if len(layer.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(layer.Features))
	}

	f := layer.Features[0]
	if f.Type != GeomPolygon {
		t.Errorf("geometry type = %v, want Polygon", f.Type)
	}
	meta, err := layer.Metadata(&f)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	want := map[string]any{"class": "ocean", "intermittent": true}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTileValueKinds(t *testing.T) {
	var layer []byte
	layer = protowire.AppendTag(layer, 1, protowire.BytesType)
	layer = protowire.AppendString(layer, "poi")
	layer = appendValueString(layer, "lake")
	layer = appendValueDouble(layer, 2.5)
	layer = appendValueBool(layer, false)

	var tile []byte
	tile = protowire.AppendTag(tile, 3, protowire.BytesType)
	tile = protowire.AppendBytes(tile, layer)

	decoded, err := DecodeTile(tile)
	if err != nil {
		t.Fatalf("DecodeTile: %v", err)
	}
	want := []any{"lake", 2.5, false}
	if diff := cmp.Diff(want, decoded.Layers[0].Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTileErrors(t *testing.T) {
	t.Run("odd tags", func(t *testing.T) {
		var layer []byte
		layer = appendFeature(layer, GeomPolygon, []uint32{0, 0, 1}, []uint32{15})

		var tile []byte
		tile = protowire.AppendTag(tile, 3, protowire.BytesType)
		tile = protowire.AppendBytes(tile, layer)

		if _, err := DecodeTile(tile); err == nil {
			t.Error("expected error for odd tag count")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		data := buildTestTile(t)
		if _, err := DecodeTile(data[:len(data)-3]); err == nil {
			t.Error("expected error for truncated tile")
		}
	})

	t.Run("metadata index out of range", func(t *testing.T) {
		layer := Layer{Keys: []string{"class"}, Values: []any{"ocean"}}
		f := Feature{Tags: []uint32{0, 7}}
		if _, err := layer.Metadata(&f); err == nil {
			t.Error("expected error for value index out of range")
		}
	})
}

func TestGeomTypeString(t *testing.T) {
	tests := []struct {
		g    GeomType
		want string
	}{
		{GeomPoint, "Point"},
		{GeomLineString, "LineString"},
		{GeomPolygon, "Polygon"},
		{GeomUnknown, "Unknown"},
		{GeomType(9), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.g.String(); got != tc.want {
			t.Errorf("GeomType(%d).String() = %q, want %q", tc.g, got, tc.want)
		}
	}
}
