// Package space provides positions, system extents, and the periodic distance
// used by buyers to cost a trip to a vendor.
package space

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedExtent is returned when an extent is neither a scalar nor a pair of bounds.
var ErrMalformedExtent = errors.New("malformed spatial extent")

// Position is a point in the simulated space. One-dimensional runs only use X
// for distance; Y is kept as plotting jitter.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Extent describes the size of a periodic system.
// Dims is 0 for an unbounded system, 1 for a line of length X, 2 for an X×Y box.
type Extent struct {
	Dims int     `json:"dims"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
}

// Unbounded returns an extent without wraparound.
func Unbounded() Extent {
	return Extent{}
}

// NewExtent builds an extent from zero, one or two bounds.
func NewExtent(bounds ...float64) (Extent, error) {
	for _, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) || b <= 0 {
			return Extent{}, fmt.Errorf("%w: bound %v", ErrMalformedExtent, b)
		}
	}
	switch len(bounds) {
	case 0:
		return Extent{}, nil
	case 1:
		return Extent{Dims: 1, X: bounds[0]}, nil
	case 2:
		return Extent{Dims: 2, X: bounds[0], Y: bounds[1]}, nil
	default:
		return Extent{}, fmt.Errorf("%w: %d bounds", ErrMalformedExtent, len(bounds))
	}
}

// Validate reports whether the extent is one of the three supported shapes.
func (e Extent) Validate() error {
	switch e.Dims {
	case 0:
		return nil
	case 1:
		_, err := NewExtent(e.X)
		return err
	case 2:
		_, err := NewExtent(e.X, e.Y)
		return err
	default:
		return fmt.Errorf("%w: %d dimensions", ErrMalformedExtent, e.Dims)
	}
}

// Wrap folds a position back into [0, X) × [0, Y).
func (e Extent) Wrap(p Position) Position {
	switch e.Dims {
	case 1:
		p.X = wrapAxis(p.X, e.X)
	case 2:
		p.X = wrapAxis(p.X, e.X)
		p.Y = wrapAxis(p.Y, e.Y)
	}
	return p
}

func (e Extent) String() string {
	switch e.Dims {
	case 0:
		return "unbounded"
	case 1:
		return fmt.Sprintf("%.2f", e.X)
	default:
		return fmt.Sprintf("%.2fx%.2f", e.X, e.Y)
	}
}

// Distance returns the distance between a and b, wrapping around the edges of e.
// A malformed extent panics; extents are validated once at setup.
func Distance(a, b Position, e Extent) float64 {
	switch e.Dims {
	case 0:
		return math.Abs(a.X - b.X)
	case 1:
		return periodic(a.X-b.X, e.X)
	case 2:
		dx := periodic(a.X-b.X, e.X)
		dy := periodic(a.Y-b.Y, e.Y)
		return math.Hypot(dx, dy)
	default:
		panic(fmt.Sprintf("space: %v: %d dimensions", ErrMalformedExtent, e.Dims))
	}
}

// periodic applies the minimum-image rule on one axis.
func periodic(d, size float64) float64 {
	raw := math.Mod(math.Abs(d), size)
	if raw > size/2 {
		return size - raw
	}
	return raw
}

func wrapAxis(v, size float64) float64 {
	v = math.Mod(v, size)
	if v < 0 {
		v += size
	}
	return v
}
