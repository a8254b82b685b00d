// Package mvt decodes Mapbox vector tile wire data.
//
// The decoder walks the protobuf wire format directly with protowire
// instead of generated message types: tag validation, per-feature error
// isolation, and geometry command interpretation all carry semantics of
// their own, and the hand-rolled walk keeps decode allocation-free apart
// from the output structures.
package mvt

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// GeomType identifies the geometry kind of a feature.
type GeomType uint32

// Geometry kinds from the vector-tile schema.
const (
	GeomUnknown GeomType = iota
	GeomPoint
	GeomLineString
	GeomPolygon
)

// String returns the kind's name as exposed to style filters.
func (g GeomType) String() string {
	switch g {
	case GeomPoint:
		return "Point"
	case GeomLineString:
		return "LineString"
	case GeomPolygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// DefaultExtent is the tile-local coordinate range used when a layer does
// not declare one.
const DefaultExtent = 4096

// Tile is a decoded vector tile.
type Tile struct {
	Layers []Layer
}

// Layer is a named bucket of features sharing key/value tables.
type Layer struct {
	Name     string
	Extent   uint32
	Keys     []string
	Values   []any
	Features []Feature
}

// Feature is one geometric object. Tags are pairs of indices into the
// parent layer's Keys and Values tables. Geometry is the raw command
// stream, decoded on demand by DecodeGeometry.
type Feature struct {
	ID       uint64
	Tags     []uint32
	Type     GeomType
	Geometry []uint32
}

var (
	// ErrTruncated is returned when a message ends inside a field.
	ErrTruncated = errors.New("mvt: truncated message")

	// ErrOddTags is returned when a feature's tag list has odd length.
	ErrOddTags = errors.New("mvt: odd tag count")
)

// DecodeTile parses tile wire data.
func DecodeTile(data []byte) (*Tile, error) {
	t := &Tile{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrTruncated
		}
		data = data[n:]

		if num == 3 && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]

			layer, err := decodeLayer(raw)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", len(t.Layers), err)
			}
			t.Layers = append(t.Layers, layer)
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, ErrTruncated
		}
		data = data[n:]
	}
	return t, nil
}

func decodeLayer(data []byte) (Layer, error) {
	layer := Layer{Extent: DefaultExtent}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return layer, ErrTruncated
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]
			layer.Name = s

		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]

			f, err := decodeFeature(raw)
			if err != nil {
				return layer, err
			}
			layer.Features = append(layer.Features, f)

		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]
			layer.Keys = append(layer.Keys, s)

		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]

			v, err := decodeValue(raw)
			if err != nil {
				return layer, err
			}
			layer.Values = append(layer.Values, v)

		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]
			layer.Extent = uint32(v)

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return layer, ErrTruncated
			}
			data = data[n:]
		}
	}
	return layer, nil
}

func decodeFeature(data []byte) (Feature, error) {
	var f Feature
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return f, ErrTruncated
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, ErrTruncated
			}
			data = data[n:]
			f.ID = v

		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return f, ErrTruncated
			}
			data = data[n:]
			for len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return f, ErrTruncated
				}
				raw = raw[n:]
				f.Tags = append(f.Tags, uint32(v))
			}

		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, ErrTruncated
			}
			data = data[n:]
			f.Type = GeomType(v)

		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return f, ErrTruncated
			}
			data = data[n:]
			for len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return f, ErrTruncated
				}
				raw = raw[n:]
				f.Geometry = append(f.Geometry, uint32(v))
			}

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return f, ErrTruncated
			}
			data = data[n:]
		}
	}
	if len(f.Tags)%2 != 0 {
		return f, ErrOddTags
	}
	return f, nil
}

// decodeValue parses a Value message into one of
// string, float32, float64, int64, uint64, or bool.
func decodeValue(data []byte) (any, error) {
	var out any
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrTruncated
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = s

		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = math.Float32frombits(v)

		case num == 3 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = math.Float64frombits(v)

		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = int64(v)

		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = v

		case num == 6 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = protowire.DecodeZigZag(v)

		case num == 7 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			out = v != 0

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
		}
	}
	return out, nil
}

// Metadata materializes a feature's tag stream against the layer's
// key/value tables. Out-of-range indices fail the feature.
func (l *Layer) Metadata(f *Feature) (map[string]any, error) {
	meta := make(map[string]any, len(f.Tags)/2)
	for i := 0; i+1 < len(f.Tags); i += 2 {
		ki, vi := f.Tags[i], f.Tags[i+1]
		if int(ki) >= len(l.Keys) || int(vi) >= len(l.Values) {
			return nil, fmt.Errorf("mvt: tag index out of range (key %d, value %d)", ki, vi)
		}
		meta[l.Keys[ki]] = l.Values[vi]
	}
	return meta, nil
}
