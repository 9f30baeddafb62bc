package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/space"
)

var (
	// ErrNoCandidates is returned when a selection is asked to choose from nothing.
	ErrNoCandidates = errors.New("no candidate vendors")
	// ErrExhaustedCandidates is returned when every vendor in the
	// consideration set lacks the stock the buyer needs.
	ErrExhaustedCandidates = errors.New("all candidates exhausted")
)

// Selection holds the bandit parameters.
type Selection struct {
	Explore        float64 `yaml:"explore"`
	DistanceWeight float64 `yaml:"distance_weight"`
	PriceWeight    float64 `yaml:"price_weight"`
	TopN           int     `yaml:"top_n"`
}

// DefaultSelection returns the default bandit parameters.
func DefaultSelection() Selection {
	return Selection{
		Explore:        1.0,
		DistanceWeight: 0.001,
		PriceWeight:    0.1,
		TopN:           5,
	}
}

type scoredVendor struct {
	index int
	score float64
}

// score is the UCB1 estimate for one vendor minus the distance and price
// penalties. Untried vendors score 1 before penalties.
func (p Selection) score(r agents.Record, n int, dist, price float64) float64 {
	ucb := 1.0
	if r.Trials > 0 {
		n = max(n, 1)
		ucb = r.Ratio() + p.Explore*math.Sqrt(2*math.Log(float64(n))/float64(r.Trials))
	}
	return ucb - p.DistanceWeight*dist - p.PriceWeight*price
}

// Choose picks a vendor for buyer from candidates and returns it. Unknown
// vendors are registered in the buyer's ledger on first sight. The buyer's
// trial count advances once per call.
func Choose[V agents.Vendor](buyer *agents.Actor, candidates []V, p Selection, ext space.Extent, w *Watcher) (V, error) {
	var zero V
	if len(candidates) == 0 {
		return zero, fmt.Errorf("agent %d: %w", buyer.ID, ErrNoCandidates)
	}

	scores := make([]float64, len(candidates))
	for i, v := range candidates {
		id := v.AgentID()
		r, _ := buyer.Experience.GetOrInsert(id)
		dist := buyer.DistanceTo(id, v.Location(), ext)
		scores[i] = p.score(r, buyer.Trials, dist, v.Holdings().Price)
	}
	buyer.Trials++

	top := topN(scores, p.TopN)
	w.Chose(candidates[top[0].index].AgentID())

	for _, c := range top {
		v := candidates[c.index]
		if v.Holdings().Supply >= buyer.MinPurchase {
			return v, nil
		}
		w.StockOut()
	}
	return zero, fmt.Errorf("agent %d: top %d vendors: %w", buyer.ID, len(top), ErrExhaustedCandidates)
}

// topN returns the n best scores, highest first. Equal scores keep their
// original order.
func topN(scores []float64, n int) []scoredVendor {
	if n < 1 {
		n = 1
	}
	if n > len(scores) {
		n = len(scores)
	}
	top := make([]scoredVendor, 0, n)
	for i, s := range scores {
		if len(top) == n && s <= top[n-1].score {
			continue
		}
		pos := len(top)
		for pos > 0 && top[pos-1].score < s {
			pos--
		}
		if len(top) < n {
			top = append(top, scoredVendor{})
		}
		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = scoredVendor{index: i, score: s}
	}
	return top
}

// Learn applies a transaction outcome to the buyer's ledger. Untested
// outcomes leave it unchanged.
func Learn(buyer *agents.Actor, vendor agents.AgentID, out agents.Outcome) {
	if !out.Tested {
		return
	}
	buyer.Experience.Observe(vendor, out.Success)
}
