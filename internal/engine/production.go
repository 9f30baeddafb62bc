package engine

import (
	"math"

	"github.com/stuphys1729/SenHons/internal/agents"
)

// Produce runs one manufacturing round for a supplier: pay the running cost,
// then turn whole units of cash into stock made to the supplier's strategy.
// A supplier left with one unit of cash or less produces nothing and is
// reported to the watcher.
func Produce(sup *agents.Supplier, w *Watcher) agents.Outcome {
	sup.Cash -= sup.RunningCost
	if sup.Cash <= 1 {
		sup.Shortfalls++
		w.NoSales(sup.ID)
		if sup.Shortfalls > sup.BustThreshold {
			return agents.Outcome{Signal: agents.SignalRetire}
		}
		return agents.Outcome{Signal: agents.SignalNoOp}
	}

	amount := int(math.Floor(sup.Cash))
	sup.Quality = blend(sup.Quality, sup.Supply, sup.Strategy, amount)
	sup.Supply += amount
	sup.Cash -= float64(amount)
	sup.Shortfalls = 0

	if sup.Supply > 2*sup.ExpansionThreshold {
		return agents.Outcome{Signal: agents.SignalSpawn}
	}
	return agents.Outcome{}
}
