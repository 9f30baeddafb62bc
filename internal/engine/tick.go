// Package engine provides the market simulation and the step loop that drives it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Engine drives the simulation forward and serves control requests between
// steps. It is the only goroutine that touches simulation state.
type Engine struct {
	Sim         *Simulation
	Bus         *telemetry.Bus // optional
	MaxSteps    int            // 0 = run until stopped
	ReportEvery int            // steps between frames and report lines
	SaveEvery   int            // steps between OnSave calls, 0 = never
	Interval    time.Duration  // pause between steps, 0 = flat out

	// Callbacks, populated during setup.
	OnStep   func(stats telemetry.StepStats) // every step
	OnReport func(stats telemetry.StepStats) // every ReportEvery steps
	OnSave   func(sim *Simulation) error     // every SaveEvery steps and at exit

	paused  bool
	stopped bool
}

// NewEngine creates an engine with default settings.
func NewEngine(sim *Simulation, bus *telemetry.Bus) *Engine {
	return &Engine{
		Sim:         sim,
		Bus:         bus,
		ReportEvery: 10,
	}
}

// Run steps the simulation until MaxSteps is reached, ctx is cancelled or a
// stop request arrives. The bus is closed on return so consumers see the
// stop message.
func (e *Engine) Run(ctx context.Context) error {
	if e.Bus != nil {
		defer e.Bus.Close()
		layout := e.Sim.Layout()
		e.Bus.Publish(telemetry.Message{Kind: telemetry.KindLayout, Layout: &layout})
	}

	slog.Info("simulation engine started",
		"run", e.Sim.RunID,
		"step", e.Sim.StepCount,
		"max_steps", e.MaxSteps,
		"patients", len(e.Sim.Patients),
		"sellers", len(e.Sim.Sellers),
		"suppliers", len(e.Sim.Suppliers),
	)

	err := e.loop(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}

	e.save()
	slog.Info("simulation engine stopped", "step", e.Sim.StepCount, "total_sales", humanize.Comma(int64(e.Sim.TotalSales)))
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		e.serve(ctx, false)
		for e.paused && !e.stopped {
			if err := e.serve(ctx, true); err != nil {
				return err
			}
		}
		if e.stopped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.MaxSteps > 0 && e.Sim.StepCount >= e.MaxSteps {
			return nil
		}

		stats, err := e.Sim.Step()
		if err != nil {
			return fmt.Errorf("step %d: %w", stats.Step, err)
		}
		e.afterStep(stats)

		if e.Interval > 0 {
			if err := e.wait(ctx); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) afterStep(stats telemetry.StepStats) {
	if e.OnStep != nil {
		e.OnStep(stats)
	}
	if e.ReportEvery > 0 && stats.Step%e.ReportEvery == 0 {
		e.report(stats)
		if e.Bus != nil {
			frame := e.Sim.Frame()
			e.Bus.Publish(telemetry.Message{Kind: telemetry.KindFrame, Frame: &frame})
		}
		if e.OnReport != nil {
			e.OnReport(stats)
		}
	}
	if e.SaveEvery > 0 && stats.Step%e.SaveEvery == 0 {
		e.save()
	}
}

// wait sleeps for the step interval while still answering requests.
func (e *Engine) wait(ctx context.Context) error {
	timer := time.NewTimer(e.Interval)
	defer timer.Stop()
	for {
		var requests <-chan telemetry.Request
		if e.Bus != nil {
			requests = e.Bus.Requests()
		}
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case req := <-requests:
			e.handle(req)
			if e.stopped || e.paused {
				return nil
			}
		}
	}
}

// serve answers control requests. Without block it only drains what is
// already waiting.
func (e *Engine) serve(ctx context.Context, block bool) error {
	if e.Bus == nil {
		if block {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	for {
		if block {
			select {
			case req := <-e.Bus.Requests():
				e.handle(req)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case req := <-e.Bus.Requests():
			e.handle(req)
		default:
			return nil
		}
	}
}

func (e *Engine) handle(req telemetry.Request) {
	switch req.Op {
	case telemetry.OpPause:
		if !e.paused {
			slog.Info("simulation paused", "step", e.Sim.StepCount)
		}
		e.paused = true
	case telemetry.OpResume:
		if e.paused {
			slog.Info("simulation resumed", "step", e.Sim.StepCount)
		}
		e.paused = false
	case telemetry.OpStop:
		slog.Info("stop requested", "step", e.Sim.StepCount)
		e.stopped = true
	case telemetry.OpInspect:
		view, err := e.Sim.Inspect(agents.AgentID(req.Agent))
		if err != nil {
			req.Respond(telemetry.Reply{Err: err})
			return
		}
		req.Respond(telemetry.Reply{Agent: &view, Status: e.status()})
		return
	}
	req.Respond(telemetry.Reply{Status: e.status()})
}

func (e *Engine) status() telemetry.Status {
	st := e.Sim.Status()
	st.Paused = e.paused
	if e.Bus != nil {
		st.Dropped = e.Bus.Dropped()
	}
	return st
}

// report logs the periodic market summary.
func (e *Engine) report(stats telemetry.StepStats) {
	slog.Info("market report",
		"step", stats.Step,
		"mean_quality", fmt.Sprintf("%.3f", stats.MeanQuality),
		"top_quality", fmt.Sprintf("%.3f", stats.TopQuality),
		"top_seller", stats.TopSeller,
		"top_vendor", stats.TopVendor,
		"top_choices", stats.TopChoices,
		"failed_sales", stats.StockOuts,
		"exhausted", stats.Exhausted,
		"dormant_suppliers", stats.Dormant,
		"sellers", stats.Sellers,
		"suppliers", stats.Suppliers,
		"total_sales", humanize.Comma(int64(e.Sim.TotalSales)),
	)
}

func (e *Engine) save() {
	if e.OnSave == nil {
		return
	}
	if err := e.OnSave(e.Sim); err != nil {
		slog.Error("save failed", "step", e.Sim.StepCount, "error", err)
	}
}
