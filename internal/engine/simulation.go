// Simulation ties the three market tiers together and runs them each step.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/environment"
	"github.com/stuphys1729/SenHons/internal/space"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Step modes.
const (
	StepStochastic = "stochastic" // a shuffled sample of patients, all sellers shuffled
	StepSweep      = "sweep"      // every patient and seller in list order
)

// Policies for a selection whose consideration set is out of stock.
const (
	ExhaustedContinue = "continue"
	ExhaustedAbort    = "abort"
)

// Params configures a simulation.
type Params struct {
	Patients         int                 `yaml:"patients"`
	Sellers          int                 `yaml:"sellers"`
	Suppliers        int                 `yaml:"suppliers"`
	PatientPurchase  int                 `yaml:"patient_min_purchase"`
	DynamicActors    bool                `yaml:"dynamic_actors"`
	StrategyMutation float64             `yaml:"strategy_mutation"`
	SampleFraction   float64             `yaml:"sample_fraction"`
	StepMode         string              `yaml:"step_mode"`
	OnExhausted      string              `yaml:"on_exhausted"`
	Market           Market              `yaml:"market"`
	Selection        Selection           `yaml:"selection"`
	Seller           agents.VendorParams `yaml:"seller"`
	Supplier         agents.VendorParams `yaml:"supplier"`
}

// DefaultParams returns the default market: 100 patients, 10 sellers and
// 5 suppliers, with dynamic pricing and dynamic actors off.
func DefaultParams() Params {
	return Params{
		Patients:        100,
		Sellers:         10,
		Suppliers:       5,
		PatientPurchase: 1,
		SampleFraction:  0.2,
		StepMode:        StepStochastic,
		OnExhausted:     ExhaustedContinue,
		Market:          Market{PriceStep: 0.1},
		Selection:       DefaultSelection(),
		Seller:          agents.DefaultSellerParams(),
		Supplier:        agents.DefaultSupplierParams(),
	}
}

// Validate rejects parameter sets the simulation cannot run.
func (p Params) Validate() error {
	var errs []error
	if p.Patients < 1 {
		errs = append(errs, fmt.Errorf("patients must be positive, got %d", p.Patients))
	}
	if p.Sellers < 1 {
		errs = append(errs, fmt.Errorf("sellers must be positive, got %d", p.Sellers))
	}
	if p.Suppliers < 1 {
		errs = append(errs, fmt.Errorf("suppliers must be positive, got %d", p.Suppliers))
	}
	if p.PatientPurchase < 1 || p.Seller.MinPurchase < 1 {
		errs = append(errs, errors.New("minimum purchases must be at least 1"))
	}
	if p.SampleFraction <= 0 || p.SampleFraction > 1 {
		errs = append(errs, fmt.Errorf("sample_fraction must be in (0, 1], got %v", p.SampleFraction))
	}
	if p.StepMode != StepStochastic && p.StepMode != StepSweep {
		errs = append(errs, fmt.Errorf("unknown step_mode %q", p.StepMode))
	}
	if p.OnExhausted != ExhaustedContinue && p.OnExhausted != ExhaustedAbort {
		errs = append(errs, fmt.Errorf("unknown on_exhausted policy %q", p.OnExhausted))
	}
	if p.Selection.TopN < 1 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", p.Selection.TopN))
	}
	if p.Seller.PriceBase <= 0 || p.Supplier.PriceBase <= 0 {
		errs = append(errs, errors.New("price_base must be positive"))
	}
	if p.StrategyMutation < 0 {
		errs = append(errs, errors.New("strategy_mutation must not be negative"))
	}
	return errors.Join(errs...)
}

// Population is a set of agents restored from storage.
type Population struct {
	Patients  []*agents.Patient
	Sellers   []*agents.Seller
	Suppliers []*agents.Supplier
}

// Simulation holds the complete market state.
type Simulation struct {
	Params     Params
	RunID      string
	Patients   []*agents.Patient
	Sellers    []*agents.Seller
	Suppliers  []*agents.Supplier
	AgentIndex map[agents.AgentID]agents.Member
	Spawner    *agents.Spawner
	Sampler    environment.Sampler
	Extent     space.Extent
	Locations  []telemetry.Location

	StepCount  int
	TotalSales int
	History    []float64 // mean sale quality per step

	rng     *entropy.Source
	watcher *Watcher
	pending []pendingSignal
	last    telemetry.StepStats
}

// NewSimulation places a fresh population. A nil sampler selects the line
// layout: patients one unit apart, vendors evenly spaced along the same line.
// When sellers start with cash they run one restocking round before the
// first step.
func NewSimulation(p Params, rng *entropy.Source, sampler environment.Sampler, runID string) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	s := newSimulation(p, rng, runID)
	if sampler == nil {
		line, err := environment.NewLine(float64(p.Patients), rng)
		if err != nil {
			return nil, err
		}
		s.Sampler = line
		s.placeOnLine(line)
	} else {
		s.Sampler = sampler
		s.placeSampled(sampler)
	}
	if err := s.useSampler(s.Sampler); err != nil {
		return nil, err
	}
	s.index()
	s.cacheDistances()

	if p.Seller.Cash > 0 {
		if err := s.restockRound(identity(len(s.Sellers))); err != nil {
			return nil, fmt.Errorf("initial restock: %w", err)
		}
		spawned, retired := s.applySignals()
		slog.Info("initial restock round",
			"sellers", len(s.Sellers),
			"stock_outs", s.watcher.StockOuts(),
			"spawned", spawned,
			"retired", retired,
		)
		s.watcher.Reset()
	}
	return s, nil
}

// Restore rebuilds a simulation from a saved population.
func Restore(p Params, rng *entropy.Source, sampler environment.Sampler, runID string, pop Population, step int, nextID agents.AgentID) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if len(pop.Patients) == 0 {
		return nil, errors.New("restore: no patients")
	}
	s := newSimulation(p, rng, runID)
	s.Patients, s.Sellers, s.Suppliers = pop.Patients, pop.Sellers, pop.Suppliers
	s.StepCount = step
	s.Spawner.SetNextID(nextID)

	if sampler == nil {
		line, err := environment.NewLine(float64(len(pop.Patients)), rng)
		if err != nil {
			return nil, err
		}
		sampler = line
	}
	if err := s.useSampler(sampler); err != nil {
		return nil, err
	}
	s.index()
	s.cacheDistances()
	return s, nil
}

func newSimulation(p Params, rng *entropy.Source, runID string) *Simulation {
	return &Simulation{
		Params:     p,
		RunID:      runID,
		AgentIndex: make(map[agents.AgentID]agents.Member),
		Spawner:    agents.NewSpawner(rng),
		rng:        rng,
		watcher:    NewWatcher(),
	}
}

func (s *Simulation) useSampler(sampler environment.Sampler) error {
	s.Sampler = sampler
	s.Extent = sampler.Extent()
	if err := s.Extent.Validate(); err != nil {
		return err
	}
	if tm, ok := sampler.(*environment.TownMap); ok {
		for _, t := range tm.Towns() {
			s.Locations = append(s.Locations, telemetry.Location{Name: t.Name, Weight: t.Weight, X: t.X, Y: t.Y})
		}
	}
	return nil
}

func (s *Simulation) placeOnLine(line *environment.Line) {
	p := s.Params
	sellerGap := float64(max(1, p.Patients/p.Sellers))
	supplierGap := float64(max(1, p.Patients/p.Suppliers))

	for i := 0; i < p.Patients; i++ {
		s.Patients = append(s.Patients, s.Spawner.NewPatient(line.Slot(i, 1), p.PatientPurchase))
	}
	for j := 0; j < p.Sellers; j++ {
		s.Sellers = append(s.Sellers, s.Spawner.NewSeller(line.Slot(j, sellerGap), p.Seller))
	}
	for k := 0; k < p.Suppliers; k++ {
		s.Suppliers = append(s.Suppliers, s.Spawner.NewSupplier(line.Slot(k, supplierGap), p.Supplier))
	}
}

func (s *Simulation) placeSampled(sampler environment.Sampler) {
	p := s.Params
	for i := 0; i < p.Patients; i++ {
		s.Patients = append(s.Patients, s.Spawner.NewPatient(sampler.SamplePosition(), p.PatientPurchase))
	}
	for j := 0; j < p.Sellers; j++ {
		s.Sellers = append(s.Sellers, s.Spawner.NewSeller(sampler.SamplePosition(), p.Seller))
	}
	for k := 0; k < p.Suppliers; k++ {
		s.Suppliers = append(s.Suppliers, s.Spawner.NewSupplier(sampler.SamplePosition(), p.Supplier))
	}
}

func (s *Simulation) index() {
	for _, a := range s.Patients {
		s.AgentIndex[a.ID] = a
	}
	for _, a := range s.Sellers {
		s.AgentIndex[a.ID] = a
	}
	for _, a := range s.Suppliers {
		s.AgentIndex[a.ID] = a
	}
}

func (s *Simulation) cacheDistances() {
	sellers := vendors(s.Sellers)
	for _, p := range s.Patients {
		p.RecomputeDistances(sellers, s.Extent)
	}
	suppliers := vendors(s.Suppliers)
	for _, sl := range s.Sellers {
		sl.RecomputeDistances(suppliers, s.Extent)
	}
}

func vendors[V agents.Vendor](vs []V) []agents.Vendor {
	out := make([]agents.Vendor, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Step advances the market by one step in the configured mode.
func (s *Simulation) Step() (telemetry.StepStats, error) {
	if s.Params.StepMode == StepSweep {
		return s.Sweep()
	}
	k := int(math.Ceil(s.Params.SampleFraction * float64(len(s.Patients))))
	k = min(max(k, 1), len(s.Patients))
	patients := s.rng.Perm(len(s.Patients))[:k]
	sellers := s.rng.Perm(len(s.Sellers))
	return s.advance(patients, sellers)
}

// Sweep advances the market with every patient and every seller acting once
// in list order.
func (s *Simulation) Sweep() (telemetry.StepStats, error) {
	return s.advance(identity(len(s.Patients)), identity(len(s.Sellers)))
}

func (s *Simulation) advance(patients, sellers []int) (telemetry.StepStats, error) {
	s.StepCount++

	for _, i := range patients {
		p := s.Patients[i]
		seller, err := Choose(&p.Actor, s.Sellers, s.Params.Selection, s.Extent, s.watcher)
		if err != nil {
			if err := s.selectionFailed(err); err != nil {
				return s.finishStep(0, 0), err
			}
			continue
		}
		out := SellToPatient(seller, s.Params.Market, s.rng, s.watcher)
		Learn(&p.Actor, seller.ID, out)
	}

	if err := s.restockRound(sellers); err != nil {
		return s.finishStep(0, 0), err
	}

	for _, sup := range s.Suppliers {
		out := Produce(sup, s.watcher)
		s.raise(sup.ID, out.Signal)
	}

	spawned, retired := s.applySignals()
	return s.finishStep(spawned, retired), nil
}

func (s *Simulation) restockRound(order []int) error {
	for _, j := range order {
		seller := s.Sellers[j]
		sup, err := Choose(&seller.Actor, s.Suppliers, s.Params.Selection, s.Extent, s.watcher)
		if err != nil {
			if err := s.selectionFailed(err); err != nil {
				return err
			}
			continue
		}
		out := Restock(seller, sup, s.rng)
		Learn(&seller.Actor, sup.ID, out)
		s.raise(seller.ID, out.Signal)
	}
	return nil
}

// selectionFailed applies the exhausted-candidates policy. It returns the
// error when the step must stop.
func (s *Simulation) selectionFailed(err error) error {
	if errors.Is(err, ErrExhaustedCandidates) {
		s.watcher.Exhausted()
		if s.Params.OnExhausted == ExhaustedAbort {
			return err
		}
		slog.Warn("selection exhausted", "step", s.StepCount, "error", err)
		return nil
	}
	return fmt.Errorf("market collapsed: %w", err)
}

func (s *Simulation) finishStep(spawned, retired int) telemetry.StepStats {
	stats := telemetry.StepStats{
		Step:      s.StepCount,
		Sellers:   len(s.Sellers),
		Suppliers: len(s.Suppliers),
		Spawned:   spawned,
		Retired:   retired,
	}
	s.watcher.Report(&stats)
	for _, sl := range s.Sellers {
		if stats.TopSeller == 0 || sl.Quality > stats.TopQuality {
			stats.TopQuality = sl.Quality
			stats.TopSeller = uint64(sl.ID)
		}
	}
	s.watcher.Reset()

	s.TotalSales += stats.Sales
	s.History = append(s.History, stats.MeanQuality)
	s.last = stats
	return stats
}

// LastStats returns the report of the most recent step.
func (s *Simulation) LastStats() telemetry.StepStats {
	return s.last
}

// Seed returns the seed of the simulation's random source.
func (s *Simulation) Seed() int64 {
	return s.rng.Seed()
}

// MeanQualityOverall averages the per-step mean quality over steps that had sales.
func (s *Simulation) MeanQualityOverall() float64 {
	total, n := 0.0, 0
	for _, q := range s.History {
		if q > 0 {
			total += q
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
