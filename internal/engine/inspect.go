package engine

import (
	"fmt"
	"sort"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Frame snapshots vendor positions and qualities. Y columns are only filled
// for two-dimensional runs.
func (s *Simulation) Frame() telemetry.Frame {
	twoD := s.Extent.Dims == 2
	f := telemetry.Frame{
		Step:            s.StepCount,
		SellerX:         make([]float64, 0, len(s.Sellers)),
		SellerQuality:   make([]float64, 0, len(s.Sellers)),
		SupplierX:       make([]float64, 0, len(s.Suppliers)),
		SupplierQuality: make([]float64, 0, len(s.Suppliers)),
		Stats:           s.last,
	}
	for _, v := range s.Sellers {
		f.SellerX = append(f.SellerX, v.Position.X)
		f.SellerQuality = append(f.SellerQuality, v.Quality)
		if twoD {
			f.SellerY = append(f.SellerY, v.Position.Y)
		}
	}
	for _, v := range s.Suppliers {
		f.SupplierX = append(f.SupplierX, v.Position.X)
		f.SupplierQuality = append(f.SupplierQuality, v.Quality)
		if twoD {
			f.SupplierY = append(f.SupplierY, v.Position.Y)
		}
	}
	return f
}

// Layout is the one-time payload describing the space and the patients.
func (s *Simulation) Layout() telemetry.Layout {
	l := telemetry.Layout{
		RunID:     s.RunID,
		Seed:      s.rng.Seed(),
		Extent:    s.Extent,
		Locations: s.Locations,
	}
	for _, p := range s.Patients {
		l.Patients = append(l.Patients, p.Position)
	}
	return l
}

// Inspect serializes one agent.
func (s *Simulation) Inspect(id agents.AgentID) (telemetry.AgentView, error) {
	m, ok := s.AgentIndex[id]
	if !ok {
		return telemetry.AgentView{}, fmt.Errorf("agent %d: %w", id, agents.ErrUnknownAgent)
	}
	a := m.Base()
	v := telemetry.AgentView{
		ID:          uint64(a.ID),
		Role:        a.Role.String(),
		Position:    a.Position,
		Trials:      a.Trials,
		MinPurchase: a.MinPurchase,
		Experience:  make([]telemetry.ExperienceView, 0, len(a.Experience)),
	}
	if vendor, ok := m.(agents.Vendor); ok {
		st := vendor.Holdings()
		v.Stock = &telemetry.StockView{
			Cash:               st.Cash,
			Supply:             st.Supply,
			Price:              st.Price,
			Quality:            st.Quality,
			Strategy:           st.Strategy,
			Shortfalls:         st.Shortfalls,
			ExpansionThreshold: st.ExpansionThreshold,
		}
	}
	for vid, r := range a.Experience {
		_, active := s.AgentIndex[vid]
		v.Experience = append(v.Experience, telemetry.ExperienceView{
			Vendor:    uint64(vid),
			Successes: r.Successes,
			Trials:    r.Trials,
			Distance:  a.Distances[vid],
			Active:    active,
		})
	}
	sort.Slice(v.Experience, func(i, j int) bool {
		return v.Experience[i].Vendor < v.Experience[j].Vendor
	})
	return v, nil
}

// Status summarizes the simulation.
func (s *Simulation) Status() telemetry.Status {
	return telemetry.Status{
		RunID:       s.RunID,
		Seed:        s.rng.Seed(),
		Step:        s.StepCount,
		Patients:    len(s.Patients),
		Sellers:     len(s.Sellers),
		Suppliers:   len(s.Suppliers),
		TotalSales:  s.TotalSales,
		MeanQuality: s.last.MeanQuality,
		NextID:      uint64(s.Spawner.NextID()),
	}
}
