package style

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RGBA is a color with components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// RGB creates an opaque color from RGB components.
func RGB(r, g, b float64) RGBA {
	return RGBA{R: r, G: g, B: b, A: 1.0}
}

// Common colors.
var (
	Black       = RGB(0, 0, 0)
	White       = RGB(1, 1, 1)
	Transparent = RGBA{}
)

// Premultiply returns the color with RGB multiplied by alpha.
func (c RGBA) Premultiply() RGBA {
	return RGBA{
		R: c.R * c.A,
		G: c.G * c.A,
		B: c.B * c.A,
		A: c.A,
	}
}

// Lerp performs linear interpolation between two colors.
func (c RGBA) Lerp(other RGBA, t float64) RGBA {
	return RGBA{
		R: c.R + (other.R-c.R)*t,
		G: c.G + (other.G-c.G)*t,
		B: c.B + (other.B-c.B)*t,
		A: c.A + (other.A-c.A)*t,
	}
}

var (
	hslRe  = regexp.MustCompile(`^hsl\((\d+),(\d+)%,(\d+)%\)$`)
	hslaRe = regexp.MustCompile(`^hsla\((\d+),(\d+)%,(\d+)%,(\d?\.?\d*)\)$`)
)

// ParseColor parses a style-sheet color string and reports whether it was
// valid. Accepted forms are hsl(h,s%,l%), hsla(h,s%,l%,a), hex colors with
// an optional leading '#', and the CSS named colors. Whitespace inside the
// string is ignored.
func ParseColor(s string) (RGBA, bool) {
	s = strings.ReplaceAll(s, " ", "")

	if hex, ok := namedColors[strings.ToLower(s)]; ok {
		return ParseHex(hex)
	}

	if strings.HasPrefix(s, "hsl(") {
		m := hslRe.FindStringSubmatch(s)
		if m == nil {
			return RGBA{}, false
		}
		h, _ := strconv.Atoi(m[1])
		sat, _ := strconv.Atoi(m[2])
		l, _ := strconv.Atoi(m[3])
		return HSLA(float64(h), float64(sat)/100, float64(l)/100, 1), true
	}

	if strings.HasPrefix(s, "hsla(") {
		m := hslaRe.FindStringSubmatch(s)
		if m == nil {
			return RGBA{}, false
		}
		h, _ := strconv.Atoi(m[1])
		sat, _ := strconv.Atoi(m[2])
		l, _ := strconv.Atoi(m[3])
		a, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return RGBA{}, false
		}
		return HSLA(float64(h), float64(sat)/100, float64(l)/100, a), true
	}

	return ParseHex(s)
}

// ParseHex parses a hex color string and reports whether it was valid.
// Supports "RGB", "RGBA", "RRGGBB" and "RRGGBBAA" with an optional
// leading '#'.
func ParseHex(hex string) (RGBA, bool) {
	if hex != "" && hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint32
	a = 255
	ok := true

	switch len(hex) {
	case 3: // RGB
		ok = parseHex(hex[0:1], &r) && parseHex(hex[1:2], &g) && parseHex(hex[2:3], &b)
		r, g, b = r*17, g*17, b*17
	case 4: // RGBA
		ok = parseHex(hex[0:1], &r) && parseHex(hex[1:2], &g) &&
			parseHex(hex[2:3], &b) && parseHex(hex[3:4], &a)
		r, g, b, a = r*17, g*17, b*17, a*17
	case 6: // RRGGBB
		ok = parseHex(hex[0:2], &r) && parseHex(hex[2:4], &g) && parseHex(hex[4:6], &b)
	case 8: // RRGGBBAA
		ok = parseHex(hex[0:2], &r) && parseHex(hex[2:4], &g) &&
			parseHex(hex[4:6], &b) && parseHex(hex[6:8], &a)
	default:
		return RGBA{R: 0, G: 0, B: 0, A: 1}, false
	}

	if !ok {
		return RGBA{R: 0, G: 0, B: 0, A: 1}, false
	}
	return RGBA{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
		A: float64(a) / 255,
	}, true
}

func parseHex(s string, val *uint32) bool {
	*val = 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		*val *= 16
		switch {
		case '0' <= c && c <= '9':
			*val += uint32(c - '0')
		case 'a' <= c && c <= 'f':
			*val += uint32(c - 'a' + 10)
		case 'A' <= c && c <= 'F':
			*val += uint32(c - 'A' + 10)
		default:
			return false
		}
	}
	return true
}

// HSLA creates a color from hue [0, 360), saturation [0, 1],
// lightness [0, 1] and alpha [0, 1].
func HSLA(h, s, l, a float64) RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 360

	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RGBA{R: r + m, G: g + m, B: b + m, A: a}
}
