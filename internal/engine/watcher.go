package engine

import (
	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Watcher tallies what happened during one step. It is observational only;
// nothing in the decision logic reads it.
type Watcher struct {
	sales       int
	meanQuality float64
	choices     map[agents.AgentID]int
	stockOuts   int
	noSales     map[agents.AgentID]int
	exhausted   int
}

// NewWatcher creates an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{
		choices: make(map[agents.AgentID]int),
		noSales: make(map[agents.AgentID]int),
	}
}

// Sale records one completed sale of the given quality into the running mean.
func (w *Watcher) Sale(quality float64) {
	w.sales++
	w.meanQuality += (quality - w.meanQuality) / float64(w.sales)
}

// Chose records the top-scoring vendor of a selection.
func (w *Watcher) Chose(id agents.AgentID) {
	w.choices[id]++
}

// StockOut records a considered vendor that could not serve the buyer.
func (w *Watcher) StockOut() {
	w.stockOuts++
}

// NoSales records a supplier that could not afford to produce.
func (w *Watcher) NoSales(id agents.AgentID) {
	w.noSales[id]++
}

// Exhausted records a selection whose whole consideration set was out of stock.
func (w *Watcher) Exhausted() {
	w.exhausted++
}

// Sales returns the number of sales this step.
func (w *Watcher) Sales() int { return w.sales }

// MeanQuality returns the mean quality of this step's sales.
func (w *Watcher) MeanQuality() float64 { return w.meanQuality }

// StockOuts returns the stock-out count.
func (w *Watcher) StockOuts() int { return w.stockOuts }

// Choices returns how often a vendor was the top pick this step.
func (w *Watcher) Choices(id agents.AgentID) int { return w.choices[id] }

// TopChoice returns the most chosen vendor; ties go to the lower id.
func (w *Watcher) TopChoice() (agents.AgentID, int) {
	var best agents.AgentID
	n := 0
	for id, c := range w.choices {
		if c > n || (c == n && id < best) {
			best, n = id, c
		}
	}
	return best, n
}

// Report summarizes the step so far into stats.
func (w *Watcher) Report(stats *telemetry.StepStats) {
	stats.Sales = w.sales
	stats.MeanQuality = w.meanQuality
	stats.StockOuts = w.stockOuts
	stats.Exhausted = w.exhausted
	stats.Dormant = len(w.noSales)
	top, n := w.TopChoice()
	stats.TopVendor = uint64(top)
	stats.TopChoices = n
}

// Reset clears every counter for the next step.
func (w *Watcher) Reset() {
	w.sales = 0
	w.meanQuality = 0
	w.stockOuts = 0
	w.exhausted = 0
	clear(w.choices)
	clear(w.noSales)
}
