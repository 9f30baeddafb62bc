// Agent spawning: initial populations with randomized economic attributes,
// and children of vendors that have outgrown their stock.
package agents

import (
	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/space"
)

// VendorParams holds the starting attributes for one vendor role.
// Price is PriceBase plus a uniform draw; cash is Cash plus CashJitter times a
// uniform draw.
type VendorParams struct {
	Supply             int     `yaml:"supply"`
	Cash               float64 `yaml:"cash"`
	CashJitter         float64 `yaml:"cash_jitter"`
	PriceBase          float64 `yaml:"price_base"`
	MinPurchase        int     `yaml:"min_purchase"`
	ExpansionThreshold int     `yaml:"expansion_threshold"`
	BustThreshold      int     `yaml:"bust_threshold"`
	RunningCost        float64 `yaml:"running_cost"`
}

// DefaultSellerParams returns the seller defaults: 10 units, 10 cash.
func DefaultSellerParams() VendorParams {
	return VendorParams{
		Supply:             10,
		Cash:               10,
		PriceBase:          1,
		MinPurchase:        1,
		ExpansionThreshold: 50,
		BustThreshold:      20,
	}
}

// DefaultSupplierParams returns the supplier defaults: 100 units, 10+U cash.
func DefaultSupplierParams() VendorParams {
	return VendorParams{
		Supply:             100,
		Cash:               10,
		CashJitter:         1,
		PriceBase:          1,
		MinPurchase:        1,
		ExpansionThreshold: 500,
		BustThreshold:      20,
	}
}

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *entropy.Source
	nextID AgentID
}

// NewSpawner creates a spawner drawing attributes from rng.
func NewSpawner(rng *entropy.Source) *Spawner {
	return &Spawner{
		rng:    rng,
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the ID the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

func (s *Spawner) allocate() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// NewPatient creates a patient at pos.
func (s *Spawner) NewPatient(pos space.Position, minPurchase int) *Patient {
	return &Patient{Actor: newActor(s.allocate(), RolePatient, pos, minPurchase)}
}

// NewSeller creates a seller with random price, strategy and quality.
func (s *Spawner) NewSeller(pos space.Position, p VendorParams) *Seller {
	seller := &Seller{Actor: newActor(s.allocate(), RoleSeller, pos, p.MinPurchase)}
	seller.Stock = Stock{
		Cash:               p.Cash + p.CashJitter*s.rng.Float(),
		Supply:             p.Supply,
		ExpansionThreshold: p.ExpansionThreshold,
		BustThreshold:      p.BustThreshold,
	}
	seller.Price = p.PriceBase + s.rng.Float()
	seller.Strategy = s.rng.Float()
	seller.Quality = s.rng.Float()
	return seller
}

// NewSupplier creates a supplier whose strategy starts at its own quality.
func (s *Spawner) NewSupplier(pos space.Position, p VendorParams) *Supplier {
	sup := &Supplier{
		Actor:       newActor(s.allocate(), RoleSupplier, pos, p.MinPurchase),
		RunningCost: p.RunningCost,
	}
	sup.Stock = Stock{
		Supply:             p.Supply,
		ExpansionThreshold: p.ExpansionThreshold,
		BustThreshold:      p.BustThreshold,
	}
	sup.Cash = p.Cash + p.CashJitter*s.rng.Float()
	sup.Quality = s.rng.Float()
	sup.Strategy = sup.Quality
	sup.Price = p.PriceBase + s.rng.Float()
	return sup
}

// ChildSeller splits a new seller off parent at pos. The child takes half the
// parent's supply, a halved copy of its experience, and no cash.
func (s *Spawner) ChildSeller(parent *Seller, pos space.Position, mutation float64) *Seller {
	return &Seller{
		Actor: s.inherit(&parent.Actor, pos),
		Stock: s.split(&parent.Stock, mutation),
	}
}

// ChildSupplier splits a new supplier off parent at pos.
func (s *Spawner) ChildSupplier(parent *Supplier, pos space.Position, mutation float64) *Supplier {
	return &Supplier{
		Actor:       s.inherit(&parent.Actor, pos),
		Stock:       s.split(&parent.Stock, mutation),
		RunningCost: parent.RunningCost,
	}
}

func (s *Spawner) inherit(parent *Actor, pos space.Position) Actor {
	child := newActor(s.allocate(), parent.Role, pos, parent.MinPurchase)
	child.Experience = parent.Experience.Halved()
	child.Trials = parent.Trials / 2
	return child
}

func (s *Spawner) split(parent *Stock, mutation float64) Stock {
	half := parent.Supply / 2
	parent.Supply -= half

	strategy := parent.Strategy
	if mutation > 0 {
		strategy = clamp01(strategy + s.rng.Norm()*mutation)
	}
	return Stock{
		Supply:             half,
		Price:              parent.Price,
		Quality:            parent.Quality,
		Strategy:           strategy,
		ExpansionThreshold: parent.ExpansionThreshold,
		BustThreshold:      parent.BustThreshold,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
