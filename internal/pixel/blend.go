package pixel

// Blend composites incoming over existing using incoming's alpha as the
// mixing weight.  The result is always opaque: the canvas never stores
// partial transparency.
//
// Each channel is round((in*a + ex*(255-a)) / 255) computed in integer
// arithmetic, so results are reproducible across platforms.
func Blend(existing, incoming Color) Color {
	switch incoming.A {
	case Opaque:
		return RGB(incoming.R, incoming.G, incoming.B)
	case 0:
		return RGB(existing.R, existing.G, existing.B)
	}
	a := uint32(incoming.A)
	return RGB(
		mix(existing.R, incoming.R, a),
		mix(existing.G, incoming.G, a),
		mix(existing.B, incoming.B, a),
	)
}

func mix(ex, in uint8, a uint32) uint8 {
	n := uint32(in)*a + uint32(ex)*(Opaque-a)
	return uint8((n + Opaque/2) / Opaque)
}
