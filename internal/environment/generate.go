// Procedural town layouts from layered simplex noise. Population density is
// sampled on a grid; the densest cells become towns, kept apart by a minimum
// spacing, with weight and spread taken from the local density.
package environment

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds town generation parameters.
type GenConfig struct {
	Seed       int64   // Random seed (0 = random)
	Towns      int     // Number of towns to place
	Width      float64 // Size of the area the centers are placed in
	Height     float64
	MinSpacing float64 // Minimum distance between two town centers
	Resolution float64 // Grid step for density sampling
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:       0,
		Towns:      6,
		Width:      100,
		Height:     100,
		MinSpacing: 15,
		Resolution: 1,
	}
}

// MaxTowns is the number of distinct names Generate can produce.
const MaxTowns = 21 * 15

// Generate places cfg.Towns towns (at most MaxTowns). It may return fewer
// when the spacing leaves no room.
func Generate(cfg GenConfig) []Town {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = 1
	}
	if cfg.Towns > MaxTowns {
		cfg.Towns = MaxTowns
	}
	rng := rand.New(rand.NewSource(seed + 200))

	density := opensimplex.NewNormalized(seed)
	spread := opensimplex.NewNormalized(seed + 1)

	type scored struct {
		x, y  float64
		score float64
	}
	var candidates []scored
	for x := 0.0; x < cfg.Width; x += cfg.Resolution {
		for y := 0.0; y < cfg.Height; y += cfg.Resolution {
			candidates = append(candidates, scored{x, y, octaveNoise(density, x, y, 4, 0.04, 0.5)})
		}
	}

	// Densest first.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var towns []Town
	for _, c := range candidates {
		if len(towns) >= cfg.Towns {
			break
		}
		if tooClose(c.x, c.y, towns, cfg.MinSpacing) {
			continue
		}
		s := 1 + 3*spread.Eval2(c.x*0.05, c.y*0.05)
		towns = append(towns, Town{
			X:      c.x,
			Y:      c.y,
			Weight: math.Round(c.score*100) / 10,
			SigmaX: s,
			SigmaY: s,
		})
	}

	names := generateNames(rng, len(towns))
	for i := range towns {
		towns[i].Name = names[i]
	}
	return towns
}

// octaveNoise sums several frequencies of noise, normalized back to [0, 1].
func octaveNoise(n opensimplex.Noise, x, y float64, octaves int, freq, persistence float64) float64 {
	total, amp, maxAmp := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += n.Eval2(x*freq, y*freq) * amp
		maxAmp += amp
		amp *= persistence
		freq *= 2
	}
	return total / maxAmp
}

func tooClose(x, y float64, existing []Town, minDist float64) bool {
	for _, t := range existing {
		if math.Hypot(x-t.X, y-t.Y) < minDist {
			return true
		}
	}
	return false
}

// generateNames produces procedural town names by combining syllables.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "High", "Low", "Old", "New",
		"Far", "Deep", "Long", "Broad", "Elm", "Oak", "River",
	}
	suffixes := []string{
		"haven", "ford", "wick", "bridge", "gate", "stead", "field",
		"dale", "vale", "port", "town", "bury", "well", "brook", "moor",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)
	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}
	return names
}
