// Package agents provides the market participants: patients, sellers and
// suppliers, their per-vendor experience ledgers, and the spawner that
// allocates their identifiers.
package agents

import (
	"errors"

	"github.com/stuphys1729/SenHons/internal/space"
)

// ErrUnknownAgent is returned when an agent id is not in the population.
var ErrUnknownAgent = errors.New("unknown agent")

// AgentID is a unique identifier for an agent. IDs come from one
// population-wide counter and are never reused.
type AgentID uint64

// Role is the market tier an agent belongs to.
type Role uint8

const (
	RolePatient Role = iota
	RoleSeller
	RoleSupplier
)

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleSeller:
		return "seller"
	case RoleSupplier:
		return "supplier"
	default:
		return "unknown"
	}
}

// Signal is a population-control request raised by a transaction.
type Signal uint8

const (
	SignalNone   Signal = iota
	SignalNoOp          // no transaction took place
	SignalSpawn         // surplus stock, open a new outlet
	SignalRetire        // ran out of runway
)

func (s Signal) String() string {
	switch s {
	case SignalNoOp:
		return "noop"
	case SignalSpawn:
		return "spawn"
	case SignalRetire:
		return "retire"
	default:
		return "none"
	}
}

// Outcome is the result of one transaction attempt. Tested is false when no
// quality judgement took place (for example the buyer could not pay), in which
// case the buyer's experience is left unchanged.
type Outcome struct {
	Tested  bool
	Success bool
	Signal  Signal
}

// Actor is the state shared by every agent.
type Actor struct {
	ID          AgentID
	Role        Role
	Position    space.Position
	Experience  Experience
	Distances   map[AgentID]float64 // lazily filled, vendors never move
	Trials      int                 // selection decisions made so far (N)
	MinPurchase int
}

func newActor(id AgentID, role Role, pos space.Position, minPurchase int) Actor {
	return Actor{
		ID:          id,
		Role:        role,
		Position:    pos,
		Experience:  make(Experience),
		Distances:   make(map[AgentID]float64),
		MinPurchase: minPurchase,
	}
}

// Base returns the shared agent state.
func (a *Actor) Base() *Actor {
	return a
}

// Member is any agent in the population.
type Member interface {
	Base() *Actor
}

// DistanceTo returns the cached distance to a vendor, computing it on first use.
func (a *Actor) DistanceTo(id AgentID, pos space.Position, ext space.Extent) float64 {
	if d, ok := a.Distances[id]; ok {
		return d
	}
	d := space.Distance(a.Position, pos, ext)
	a.Distances[id] = d
	return d
}

// RecomputeDistances drops the cache and recomputes it for the given vendors.
func (a *Actor) RecomputeDistances(vendors []Vendor, ext space.Extent) {
	a.Distances = make(map[AgentID]float64, len(vendors))
	for _, v := range vendors {
		a.DistanceTo(v.AgentID(), v.Location(), ext)
	}
}

// Stock is the economic state of a vendor.
type Stock struct {
	Cash               float64
	Supply             int
	Price              float64
	Quality            float64
	Strategy           float64 // quality target when producing
	Shortfalls         int     // consecutive failed transactions
	ExpansionThreshold int
	BustThreshold      int
}

// Vendor is anything a buyer can purchase from.
type Vendor interface {
	AgentID() AgentID
	Location() space.Position
	Holdings() *Stock
}

// Patient buys medicine from sellers. Patients are created once per run.
type Patient struct {
	Actor
}

// Seller buys stock from suppliers and sells it on to patients.
type Seller struct {
	Actor
	Stock
}

func (s *Seller) AgentID() AgentID         { return s.ID }
func (s *Seller) Location() space.Position { return s.Position }
func (s *Seller) Holdings() *Stock         { return &s.Stock }

// Supplier manufactures stock and sells it to sellers.
type Supplier struct {
	Actor
	Stock
	RunningCost float64
}

func (s *Supplier) AgentID() AgentID         { return s.ID }
func (s *Supplier) Location() space.Position { return s.Position }
func (s *Supplier) Holdings() *Stock         { return &s.Stock }
