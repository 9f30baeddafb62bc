// Population dynamics: vendors that outgrow their stock open a new outlet
// nearby; vendors that run out of runway leave the market. Signals raised
// during a step are applied only after every agent has acted.
package engine

import (
	"log/slog"
	"slices"

	"github.com/stuphys1729/SenHons/internal/agents"
)

type pendingSignal struct {
	id     agents.AgentID
	signal agents.Signal
}

// raise queues a population signal for the end of the step.
func (s *Simulation) raise(id agents.AgentID, sig agents.Signal) {
	if sig != agents.SignalSpawn && sig != agents.SignalRetire {
		return
	}
	s.pending = append(s.pending, pendingSignal{id: id, signal: sig})
}

// applySignals spawns and retires vendors in the order the signals were
// raised. A vendor already retired this step is skipped.
func (s *Simulation) applySignals() (spawned, retired int) {
	pending := s.pending
	s.pending = s.pending[:0]
	if !s.Params.DynamicActors {
		return 0, 0
	}

	for _, p := range pending {
		m, ok := s.AgentIndex[p.id]
		if !ok {
			continue
		}
		switch p.signal {
		case agents.SignalSpawn:
			if child := s.spawnFrom(m); child != nil {
				spawned++
			}
		case agents.SignalRetire:
			s.retire(m)
			retired++
		}
	}
	return spawned, retired
}

// spawnFrom creates a child of a seller or supplier at a freshly sampled
// position and seeds every counterparty that knows the parent with a halved
// record for the child.
func (s *Simulation) spawnFrom(m agents.Member) agents.Member {
	pos := s.Sampler.SamplePosition()
	mutation := s.Params.StrategyMutation

	switch parent := m.(type) {
	case *agents.Seller:
		child := s.Spawner.ChildSeller(parent, pos, mutation)
		s.Sellers = append(s.Sellers, child)
		s.AgentIndex[child.ID] = child
		for _, p := range s.Patients {
			seedCounterparty(&p.Actor, parent.ID, child.ID)
		}
		slog.Debug("seller spawned", "parent", parent.ID, "child", child.ID, "supply", child.Supply, "step", s.StepCount)
		return child

	case *agents.Supplier:
		child := s.Spawner.ChildSupplier(parent, pos, mutation)
		s.Suppliers = append(s.Suppliers, child)
		s.AgentIndex[child.ID] = child
		for _, sl := range s.Sellers {
			seedCounterparty(&sl.Actor, parent.ID, child.ID)
		}
		slog.Debug("supplier spawned", "parent", parent.ID, "child", child.ID, "supply", child.Supply, "step", s.StepCount)
		return child
	}
	return nil
}

func seedCounterparty(buyer *agents.Actor, parent, child agents.AgentID) {
	if r, ok := buyer.Experience.TryGet(parent); ok {
		buyer.Experience.Seed(child, r.Halved())
	}
}

// retire removes a vendor from its population. Its id is never reissued and
// buyers keep their records for it.
func (s *Simulation) retire(m agents.Member) {
	id := m.Base().ID
	switch m.(type) {
	case *agents.Seller:
		s.Sellers = slices.DeleteFunc(s.Sellers, func(v *agents.Seller) bool { return v.ID == id })
	case *agents.Supplier:
		s.Suppliers = slices.DeleteFunc(s.Suppliers, func(v *agents.Supplier) bool { return v.ID == id })
	default:
		return
	}
	delete(s.AgentIndex, id)
	slog.Debug("vendor retired", "id", id, "role", m.Base().Role, "step", s.StepCount)
}
