// Package pixel holds the color model of the canvas: hex parsing and
// formatting of protocol color tokens and alpha blending of incoming
// writes onto stored pixels.
package pixel

import (
	"errors"
	"fmt"
)

// Opaque is the alpha value of a fully resolved color.
const Opaque = 0xff

// ErrInvalidColor is returned for color tokens that are not exactly 6 or
// 8 hex digits.
var ErrInvalidColor = errors.New("invalid color")

// Color is an 8-bit-per-channel RGBA value.  Colors parsed from a
// 6-digit token carry A == Opaque.
type Color struct {
	R, G, B, A uint8
}

// RGB returns an opaque color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, A: Opaque} }

// RGBA returns a color with an explicit alpha channel.
func RGBA(r, g, b, a uint8) Color { return Color{R: r, G: g, B: b, A: a} }

// Black is the default canvas background.
var Black = RGB(0, 0, 0)

// FromUint32 unpacks a 0x00RRGGBB value into an opaque color.
func FromUint32(v uint32) Color {
	return RGB(uint8(v>>16), uint8(v>>8), uint8(v))
}

// Uint32 packs the color channels as 0x00RRGGBB, dropping alpha.
func (c Color) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// IsOpaque reports whether the color fully replaces whatever it is
// written over.
func (c Color) IsOpaque() bool { return c.A == Opaque }

// ParseColor decodes a 6 (rrggbb) or 8 (rrggbbaa) digit hex token.
// Upper- and lower-case digits are accepted.
func ParseColor[T string | []byte](s T) (Color, error) {
	if len(s) != 6 && len(s) != 8 {
		return Color{}, fmt.Errorf("%w: %q has %d digits, want 6 or 8", ErrInvalidColor, s, len(s))
	}
	var ch [4]uint8
	ch[3] = Opaque
	for i := 0; i < len(s); i += 2 {
		hi, ok1 := unhex(s[i])
		lo, ok2 := unhex(s[i+1])
		if !ok1 || !ok2 {
			return Color{}, fmt.Errorf("%w: %q is not hex", ErrInvalidColor, s)
		}
		ch[i/2] = hi<<4 | lo
	}
	return Color{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

// Hex formats the color in lowercase: 6 digits when opaque, 8 otherwise.
func (c Color) Hex() string {
	if c.IsOpaque() {
		return c.Hex6()
	}
	return string(appendByte(c.AppendHex6(make([]byte, 0, 8)), c.A))
}

// Hex6 always formats the color as rrggbb.  Pixel-read replies use this
// form because stored pixels are always opaque.
func (c Color) Hex6() string {
	return string(c.AppendHex6(make([]byte, 0, 6)))
}

// AppendHex6 appends the rrggbb form of c to buf.
func (c Color) AppendHex6(buf []byte) []byte {
	buf = appendByte(buf, c.R)
	buf = appendByte(buf, c.G)
	return appendByte(buf, c.B)
}

func (c Color) String() string { return c.Hex() }

const hexDigits = "0123456789abcdef"

func appendByte(buf []byte, v uint8) []byte {
	return append(buf, hexDigits[v>>4], hexDigits[v&0x0f])
}

func unhex(b byte) (uint8, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
