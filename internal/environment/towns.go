// Package environment supplies agent positions. Towns are weighted Gaussian
// clusters; the line layout spreads agents evenly along a periodic 1D market.
package environment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/space"
)

// ErrNoTowns is returned when a town file has no usable entries.
var ErrNoTowns = errors.New("no towns defined")

// extentSigmas is how many standard deviations past each town center the
// system extent reaches.
const extentSigmas = 5

// Sampler hands out positions for new agents.
type Sampler interface {
	SamplePosition() space.Position
	Extent() space.Extent
}

// Town is one population center.
type Town struct {
	Name   string
	Weight float64
	X, Y   float64
	SigmaX float64
	SigmaY float64
}

// ParseTowns reads the whitespace-delimited town format:
//
//	# name weight x y sigmaX sigmaY
//	Aberdeen 2.0 10 12 1.5 1.5
func ParseTowns(r io.Reader) ([]Town, error) {
	var towns []Town
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 6 {
			return nil, fmt.Errorf("line %d: want 6 fields, got %d", line, len(fields))
		}
		var nums [5]float64
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+2, err)
			}
			nums[i] = v
		}
		t := Town{
			Name:   fields[0],
			Weight: nums[0],
			X:      nums[1],
			Y:      nums[2],
			SigmaX: nums[3],
			SigmaY: nums[4],
		}
		if t.Weight < 0 || t.SigmaX < 0 || t.SigmaY < 0 {
			return nil, fmt.Errorf("line %d: negative weight or spread", line)
		}
		towns = append(towns, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(towns) == 0 {
		return nil, ErrNoTowns
	}
	return towns, nil
}

// LoadTowns parses the town file at path.
func LoadTowns(path string) ([]Town, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open towns: %w", err)
	}
	defer f.Close()

	towns, err := ParseTowns(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return towns, nil
}

// WriteTowns writes towns in the format ParseTowns reads.
func WriteTowns(w io.Writer, towns []Town) error {
	if _, err := fmt.Fprintln(w, "# name weight x y sigmaX sigmaY"); err != nil {
		return err
	}
	for _, t := range towns {
		_, err := fmt.Fprintf(w, "%s %g %g %g %g %g\n", t.Name, t.Weight, t.X, t.Y, t.SigmaX, t.SigmaY)
		if err != nil {
			return err
		}
	}
	return nil
}

// TownMap samples positions from weighted towns.
type TownMap struct {
	towns  []Town
	total  float64
	extent space.Extent
	rng    *entropy.Source
}

// NewTownMap builds a sampler over towns. The extent covers five standard
// deviations past every town.
func NewTownMap(towns []Town, rng *entropy.Source) (*TownMap, error) {
	if len(towns) == 0 {
		return nil, ErrNoTowns
	}
	var total, maxX, maxY float64
	for _, t := range towns {
		total += t.Weight
		if x := t.X + extentSigmas*t.SigmaX; x > maxX {
			maxX = x
		}
		if y := t.Y + extentSigmas*t.SigmaY; y > maxY {
			maxY = y
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total weight is zero", ErrNoTowns)
	}
	ext, err := space.NewExtent(maxX, maxY)
	if err != nil {
		return nil, fmt.Errorf("town extent: %w", err)
	}
	return &TownMap{towns: towns, total: total, extent: ext, rng: rng}, nil
}

// Towns returns the towns backing the sampler.
func (m *TownMap) Towns() []Town {
	return m.towns
}

// Extent returns the bounding box of the town layout.
func (m *TownMap) Extent() space.Extent {
	return m.extent
}

// SamplePosition picks a town by weight and draws a point around it.
func (m *TownMap) SamplePosition() space.Position {
	t := m.pick()
	p := space.Position{
		X: t.X + m.rng.Norm()*t.SigmaX,
		Y: t.Y + m.rng.Norm()*t.SigmaY,
	}
	return m.extent.Wrap(p)
}

func (m *TownMap) pick() Town {
	r := m.rng.Float() * m.total
	for _, t := range m.towns {
		if r < t.Weight {
			return t
		}
		r -= t.Weight
	}
	return m.towns[len(m.towns)-1]
}

// Line places agents along a periodic line whose length is the patient count.
// Y is plotting jitter only.
type Line struct {
	size float64
	rng  *entropy.Source
}

// NewLine creates a line sampler of the given length.
func NewLine(size float64, rng *entropy.Source) (*Line, error) {
	if _, err := space.NewExtent(size); err != nil {
		return nil, fmt.Errorf("line layout: %w", err)
	}
	return &Line{size: size, rng: rng}, nil
}

// Extent returns the line length.
func (l *Line) Extent() space.Extent {
	return space.Extent{Dims: 1, X: l.size}
}

// SamplePosition returns a uniform point on the line.
func (l *Line) SamplePosition() space.Position {
	return space.Position{X: l.rng.Float() * l.size, Y: l.rng.Float()}
}

// Slot returns the position of the i-th of a set spaced every spacing units,
// with uniform jitter inside the slot.
func (l *Line) Slot(i int, spacing float64) space.Position {
	x := float64(i)*spacing + l.rng.Float()
	return space.Position{X: l.Extent().Wrap(space.Position{X: x}).X, Y: l.rng.Float()}
}
