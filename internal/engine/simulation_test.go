package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/environment"
)

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	p := DefaultParams()
	p.Sellers = 0
	p.StepMode = "random"
	p.SampleFraction = 1.5
	err := p.Validate()
	if err == nil {
		t.Fatal("Validate accepted a broken parameter set")
	}
	for _, want := range []string{"sellers", "step_mode", "sample_fraction"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLineLayout(t *testing.T) {
	p := smallParams()
	sim := newTestSim(t, p, 1)
	if sim.Extent.Dims != 1 || sim.Extent.X != float64(p.Patients) {
		t.Fatalf("extent = %+v, want a line of %d", sim.Extent, p.Patients)
	}
	for i, pt := range sim.Patients {
		if pt.Position.X < float64(i) || pt.Position.X >= float64(i+1) {
			t.Fatalf("patient %d at %v", i, pt.Position.X)
		}
		if len(pt.Distances) != len(sim.Sellers) {
			t.Fatalf("patient %d has %d cached distances", i, len(pt.Distances))
		}
	}
	gap := float64(p.Patients / p.Sellers)
	for j, s := range sim.Sellers {
		if s.Position.X < float64(j)*gap || s.Position.X >= float64(j)*gap+1 {
			t.Fatalf("seller %d at %v, want slot %v", j, s.Position.X, float64(j)*gap)
		}
	}
	f := sim.Frame()
	if f.SellerY != nil || f.SupplierY != nil || len(f.SellerX) != p.Sellers {
		t.Fatalf("1D frame = %+v", f)
	}
}

func TestTownLayoutFrameHasY(t *testing.T) {
	rng := entropy.New(8)
	towns := []environment.Town{{Name: "A", Weight: 1, X: 10, Y: 10, SigmaX: 1, SigmaY: 1}}
	tm, err := environment.NewTownMap(towns, rng)
	if err != nil {
		t.Fatalf("NewTownMap: %v", err)
	}
	sim, err := NewSimulation(smallParams(), rng, tm, "towns")
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	f := sim.Frame()
	if len(f.SellerY) != len(sim.Sellers) || len(f.SupplierY) != len(sim.Suppliers) {
		t.Fatalf("2D frame lacks Y columns: %+v", f)
	}
	if l := sim.Layout(); len(l.Locations) != 1 || l.Locations[0].Name != "A" || len(l.Patients) != len(sim.Patients) {
		t.Fatalf("layout = %+v", l)
	}
}

func TestInitialRestockRound(t *testing.T) {
	p := smallParams()
	p.Seller.Cash = 10
	sim := newTestSim(t, p, 12)
	for _, s := range sim.Sellers {
		known := 0
		for _, r := range s.Experience {
			known += r.Trials
		}
		if s.Trials != 1 || known != 1 {
			t.Fatalf("seller %d: N=%d, trials recorded=%d; want one restock each", s.ID, s.Trials, known)
		}
	}
}

func TestSameSeedSameRun(t *testing.T) {
	p := DefaultParams()
	p.DynamicActors = true
	p.Market.DynamicPricing = true

	run := func() *Simulation {
		sim, err := NewSimulation(p, entropy.New(31), nil, "det")
		if err != nil {
			t.Fatalf("NewSimulation: %v", err)
		}
		for i := 0; i < 60; i++ {
			if _, err := sim.Step(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		return sim
	}
	a, b := run(), run()
	if len(a.Sellers) != len(b.Sellers) || a.TotalSales != b.TotalSales {
		t.Fatalf("runs diverged: %d/%d sellers, %d/%d sales", len(a.Sellers), len(b.Sellers), a.TotalSales, b.TotalSales)
	}
	for i := range a.History {
		if a.History[i] != b.History[i] {
			t.Fatalf("mean quality diverged at step %d", i+1)
		}
	}
	for i := range a.Sellers {
		if a.Sellers[i].ID != b.Sellers[i].ID || a.Sellers[i].Quality != b.Sellers[i].Quality {
			t.Fatalf("seller %d diverged", i)
		}
	}
}

func checkLedgers(t *testing.T, sim *Simulation) {
	t.Helper()
	check := func(a *agents.Actor) {
		for v, r := range a.Experience {
			if r.Successes < 0 || r.Trials < r.Successes {
				t.Fatalf("agent %d record for %d broke the invariant: %+v", a.ID, v, r)
			}
		}
	}
	for _, p := range sim.Patients {
		check(&p.Actor)
	}
	for _, s := range sim.Sellers {
		check(&s.Actor)
		if s.Supply < 0 || s.Quality < 0 || s.Quality > 1 {
			t.Fatalf("seller %d stock out of range: supply %d quality %v", s.ID, s.Supply, s.Quality)
		}
	}
	for _, s := range sim.Suppliers {
		if s.Supply < 0 || s.Quality < 0 || s.Quality > 1 {
			t.Fatalf("supplier %d stock out of range: supply %d quality %v", s.ID, s.Supply, s.Quality)
		}
	}
}

func TestLedgersHoldOverLongRun(t *testing.T) {
	for _, mode := range []string{StepStochastic, StepSweep} {
		p := DefaultParams()
		p.StepMode = mode
		p.DynamicActors = true
		p.Market.DynamicPricing = true
		p.StrategyMutation = 0.05
		p.Seller.ExpansionThreshold = 15
		sim := newTestSim(t, p, 99)

		for i := 0; i < 300; i++ {
			stats, err := sim.Step()
			if errors.Is(err, ErrNoCandidates) {
				break
			}
			if err != nil {
				t.Fatalf("%s step %d: %v", mode, i, err)
			}
			if stats.Sellers != len(sim.Sellers) || stats.Step != sim.StepCount {
				t.Fatalf("%s: stats out of sync: %+v", mode, stats)
			}
		}
		checkLedgers(t, sim)

		seen := map[agents.AgentID]bool{}
		for id, m := range sim.AgentIndex {
			if m.Base().ID != id || seen[id] {
				t.Fatalf("%s: index entry %d is inconsistent", mode, id)
			}
			seen[id] = true
		}
		if len(sim.AgentIndex) != len(sim.Patients)+len(sim.Sellers)+len(sim.Suppliers) {
			t.Fatalf("%s: index has %d agents, lists have %d", mode, len(sim.AgentIndex),
				len(sim.Patients)+len(sim.Sellers)+len(sim.Suppliers))
		}
	}
}

func TestExhaustedPolicy(t *testing.T) {
	p := smallParams()
	p.DynamicActors = false
	p.Selection.TopN = 1
	p.StepMode = StepSweep

	sim := newTestSim(t, p, 3)
	for _, s := range sim.Sellers {
		s.Supply = 0
	}
	stats, err := sim.Step()
	if err != nil {
		t.Fatalf("continue policy returned %v", err)
	}
	if stats.Exhausted != p.Patients || stats.Sales != 0 {
		t.Fatalf("exhausted %d, sales %d; want %d and 0", stats.Exhausted, stats.Sales, p.Patients)
	}

	p.OnExhausted = ExhaustedAbort
	sim = newTestSim(t, p, 3)
	for _, s := range sim.Sellers {
		s.Supply = 0
	}
	if _, err := sim.Step(); !errors.Is(err, ErrExhaustedCandidates) {
		t.Fatalf("abort policy error = %v, want ErrExhaustedCandidates", err)
	}
}

func TestInspect(t *testing.T) {
	sim := newTestSim(t, smallParams(), 4)
	for i := 0; i < 5; i++ {
		if _, err := sim.Sweep(); err != nil {
			t.Fatalf("Sweep: %v", err)
		}
	}
	seller := sim.Sellers[0]
	v, err := sim.Inspect(seller.ID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if v.Role != "seller" || v.Stock == nil || v.Stock.Supply != seller.Supply {
		t.Fatalf("seller view = %+v", v)
	}

	pv, err := sim.Inspect(sim.Patients[0].ID)
	if err != nil || pv.Stock != nil || len(pv.Experience) != len(sim.Sellers) {
		t.Fatalf("patient view = %+v, %v", pv, err)
	}
	for i := 1; i < len(pv.Experience); i++ {
		if pv.Experience[i-1].Vendor >= pv.Experience[i].Vendor {
			t.Fatal("experience not sorted by vendor")
		}
	}

	if _, err := sim.Inspect(9999); !errors.Is(err, agents.ErrUnknownAgent) {
		t.Fatalf("Inspect(9999) error = %v, want ErrUnknownAgent", err)
	}
}
