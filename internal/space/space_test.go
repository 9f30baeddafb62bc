package space

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestDistanceWrapsOnLine(t *testing.T) {
	e, err := NewExtent(100)
	if err != nil {
		t.Fatalf("NewExtent: %v", err)
	}
	tests := []struct {
		a, b float64
		want float64
	}{
		{10, 20, 10},
		{5, 95, 10},
		{0, 50, 50},
		{0, 51, 49},
		{99.5, 0.5, 1},
	}
	for _, tc := range tests {
		got := Distance(Position{X: tc.a}, Position{X: tc.b}, e)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Distance(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDistanceWrapsEachAxis(t *testing.T) {
	e, err := NewExtent(10, 20)
	if err != nil {
		t.Fatalf("NewExtent: %v", err)
	}
	got := Distance(Position{X: 1, Y: 1}, Position{X: 9, Y: 18}, e)
	want := math.Hypot(2, 3)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Distance = %v, want %v", got, want)
	}
}

func TestDistanceUnboundedIgnoresY(t *testing.T) {
	got := Distance(Position{X: -3, Y: 7}, Position{X: 4, Y: 0}, Unbounded())
	if got != 7 {
		t.Fatalf("Distance = %v, want 7", got)
	}
}

func TestDistanceSymmetricAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	line, _ := NewExtent(37)
	box, _ := NewExtent(12, 5)

	for i := 0; i < 1000; i++ {
		a := Position{X: rng.Float64() * 37, Y: rng.Float64() * 5}
		b := Position{X: rng.Float64() * 37, Y: rng.Float64() * 5}

		d1, d2 := Distance(a, b, line), Distance(b, a, line)
		if d1 != d2 {
			t.Fatalf("line distance not symmetric: %v vs %v", d1, d2)
		}
		if d1 < 0 || d1 > line.X/2 {
			t.Fatalf("line distance %v outside [0, %v]", d1, line.X/2)
		}

		a.X, b.X = a.X*12/37, b.X*12/37
		d1, d2 = Distance(a, b, box), Distance(b, a, box)
		if d1 != d2 {
			t.Fatalf("box distance not symmetric: %v vs %v", d1, d2)
		}
		if d1 < 0 || d1 > math.Hypot(box.X/2, box.Y/2)+1e-9 {
			t.Fatalf("box distance %v exceeds half-diagonal", d1)
		}
	}
}

func TestNewExtentRejectsMalformed(t *testing.T) {
	cases := [][]float64{
		{1, 2, 3},
		{0},
		{-4},
		{math.NaN()},
		{5, math.Inf(1)},
	}
	for _, bounds := range cases {
		if _, err := NewExtent(bounds...); !errors.Is(err, ErrMalformedExtent) {
			t.Fatalf("NewExtent(%v) error = %v, want ErrMalformedExtent", bounds, err)
		}
	}
	if err := (Extent{Dims: 3, X: 1, Y: 1}).Validate(); !errors.Is(err, ErrMalformedExtent) {
		t.Fatalf("Validate on 3 dims = %v, want ErrMalformedExtent", err)
	}
}

func TestWrapFoldsIntoBox(t *testing.T) {
	e, _ := NewExtent(10, 4)
	p := e.Wrap(Position{X: -1, Y: 9})
	if math.Abs(p.X-9) > 1e-9 || math.Abs(p.Y-1) > 1e-9 {
		t.Fatalf("Wrap = %+v, want {9 1}", p)
	}
}
