package raster

import (
	"fmt"
	"math"
	"strings"
)

// PixelType is the storage depth of a raster's samples.
type PixelType int

// Supported pixel types.
const (
	U8 PixelType = iota + 1
	U16
	S16
	U32
	S32
	F32
	F64
)

//nolint:gochecknoglobals // Compile-time constant lookup table.
var pixelTypeNames = map[PixelType]string{
	U8:  "U8",
	U16: "U16",
	S16: "S16",
	U32: "U32",
	S32: "S32",
	F32: "F32",
	F64: "F64",
}

// String returns the short name of the pixel type (U8, U16, ...).
func (p PixelType) String() string {
	if name, ok := pixelTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PixelType(%d)", int(p))
}

// Valid reports whether p is one of the supported pixel types.
func (p PixelType) Valid() bool {
	_, ok := pixelTypeNames[p]
	return ok
}

// Bits returns the bit depth of a sample.
func (p PixelType) Bits() int {
	switch p {
	case U8:
		return 8
	case U16, S16:
		return 16
	case U32, S32, F32:
		return 32
	case F64:
		return 64
	default:
		return 0
	}
}

// IsInteger reports whether samples are stored as integers.
func (p PixelType) IsInteger() bool {
	return p != F32 && p != F64
}

// Range returns the smallest and largest representable value.
func (p PixelType) Range() (float64, float64) {
	switch p {
	case U8:
		return 0, math.MaxUint8
	case U16:
		return 0, math.MaxUint16
	case S16:
		return math.MinInt16, math.MaxInt16
	case U32:
		return 0, math.MaxUint32
	case S32:
		return math.MinInt32, math.MaxInt32
	case F32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// Clamp coerces v into the pixel type: integer types round half away from
// zero and saturate at the range bounds.
func (p PixelType) Clamp(v float64) float64 {
	lo, hi := p.Range()
	if math.IsNaN(v) {
		if p.IsInteger() {
			return lo
		}
		return v
	}
	if p.IsInteger() {
		v = math.Round(v)
	}
	return math.Max(lo, math.Min(hi, v))
}

// Widen returns the next pixel type able to hold every value of p plus one
// out-of-range NoData value, and that NoData value.
func (p PixelType) Widen() (PixelType, float64) {
	switch p {
	case U8:
		return U16, math.MaxUint8 + 1
	case U16:
		return U32, math.MaxUint16 + 1
	case S16:
		return S32, math.MinInt16 - 1
	case F32:
		return F64, -math.MaxFloat64
	default:
		return F64, -math.MaxFloat64
	}
}

// ParsePixelType accepts short names (U8), Go-style names (uint8) and the
// long names used by GIS tools (8_BIT_UNSIGNED).
func ParsePixelType(s string) (PixelType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U8", "UINT8", "BYTE", "8_BIT_UNSIGNED":
		return U8, nil
	case "U16", "UINT16", "16_BIT_UNSIGNED":
		return U16, nil
	case "S16", "INT16", "16_BIT_SIGNED":
		return S16, nil
	case "U32", "UINT32", "32_BIT_UNSIGNED":
		return U32, nil
	case "S32", "INT32", "32_BIT_SIGNED":
		return S32, nil
	case "F32", "FLOAT32", "32_BIT_FLOAT":
		return F32, nil
	case "F64", "FLOAT64", "64_BIT":
		return F64, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPixelType, s)
	}
}
