// Transactions between tiers: patients buying from sellers and sellers
// restocking from suppliers.
package engine

import (
	"math"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/entropy"
)

// Market holds the pricing parameters.
type Market struct {
	DynamicPricing bool    `yaml:"dynamic_pricing"`
	PriceStep      float64 `yaml:"price_step"`
}

// qualityTest draws the buyer's judgement: better medicine is more likely to
// help, with certainty at quality 1.
func qualityTest(quality float64, rng *entropy.Source) bool {
	return quality-rng.Float() > 0
}

// SellToPatient moves one unit from seller to a patient. A seller that sells
// its last unit may raise its price.
func SellToPatient(seller *agents.Seller, m Market, rng *entropy.Source, w *Watcher) agents.Outcome {
	seller.Supply--
	seller.Cash += seller.Price
	w.Sale(seller.Quality)

	if seller.Supply <= 0 && m.DynamicPricing {
		seller.Price += rng.Float() * m.PriceStep
	}
	return agents.Outcome{Tested: true, Success: qualityTest(seller.Quality, rng)}
}

// Restock has seller buy as much as it can afford from supplier. The seller's
// quality becomes the supply-weighted mean of old and new stock. A seller that
// cannot buy anything accumulates a shortfall and retires past its bust
// threshold.
func Restock(seller *agents.Seller, supplier *agents.Supplier, rng *entropy.Source) agents.Outcome {
	amount := int(math.Floor(math.Min(seller.Cash/supplier.Price, float64(supplier.Supply))))
	if amount <= 0 {
		seller.Shortfalls++
		if seller.Shortfalls > seller.BustThreshold {
			return agents.Outcome{Signal: agents.SignalRetire}
		}
		return agents.Outcome{Signal: agents.SignalNoOp}
	}
	seller.Shortfalls = 0

	cost := float64(amount) * supplier.Price
	supplier.Supply -= amount
	supplier.Cash += cost
	seller.Cash -= cost

	seller.Quality = blend(seller.Quality, seller.Supply, supplier.Quality, amount)
	seller.Supply += amount

	out := agents.Outcome{Tested: true, Success: qualityTest(supplier.Quality, rng)}
	if seller.Supply > 2*seller.ExpansionThreshold {
		out.Signal = agents.SignalSpawn
	}
	return out
}

// blend is the supply-weighted mean of two stocks' qualities.
func blend(q float64, n int, addQ float64, add int) float64 {
	total := n + add
	if total <= 0 {
		return q
	}
	return (q*float64(n) + addQ*float64(add)) / float64(total)
}
