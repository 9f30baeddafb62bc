package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

func TestEngineStopsAtMaxSteps(t *testing.T) {
	sim := newTestSim(t, smallParams(), 6)
	eng := NewEngine(sim, nil)
	eng.MaxSteps = 25
	eng.ReportEvery = 5
	eng.SaveEvery = 10

	steps, reports, saves := 0, 0, 0
	eng.OnStep = func(telemetry.StepStats) { steps++ }
	eng.OnReport = func(telemetry.StepStats) { reports++ }
	eng.OnSave = func(*Simulation) error { saves++; return nil }

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sim.StepCount != 25 || steps != 25 || reports != 5 {
		t.Fatalf("steps %d/%d, reports %d; want 25, 25, 5", sim.StepCount, steps, reports)
	}
	// Steps 10 and 20, plus the final save.
	if saves != 3 {
		t.Fatalf("saves = %d, want 3", saves)
	}
}

func TestEngineControl(t *testing.T) {
	sim := newTestSim(t, smallParams(), 6)
	bus := telemetry.NewBus(256)
	eng := NewEngine(sim, bus)
	eng.ReportEvery = 5
	eng.Interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	first := <-bus.Frames()
	if first.Kind != telemetry.KindLayout || first.Layout == nil || first.Layout.RunID != "test-run" {
		t.Fatalf("first message = %+v, want the layout", first)
	}

	st, err := bus.Pause(ctx)
	if err != nil || !st.Paused {
		t.Fatalf("Pause = %+v, %v", st, err)
	}
	held := st.Step
	time.Sleep(20 * time.Millisecond)
	st, err = bus.Status(ctx)
	if err != nil || st.Step != held {
		t.Fatalf("paused simulation moved from step %d to %d (%v)", held, st.Step, err)
	}

	id := uint64(sim.Sellers[0].ID)
	v, err := bus.Inspect(ctx, id)
	if err != nil || v.ID != id || v.Stock == nil {
		t.Fatalf("Inspect = %+v, %v", v, err)
	}
	if _, err := bus.Inspect(ctx, 123456); !errors.Is(err, agents.ErrUnknownAgent) {
		t.Fatalf("Inspect of unknown agent = %v, want ErrUnknownAgent", err)
	}

	if _, err := bus.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := bus.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	var last telemetry.Message
	for m := range bus.Frames() {
		last = m
	}
	if last.Kind != telemetry.KindStop {
		t.Fatalf("feed ended with %q, want stop", last.Kind)
	}
	if _, err := bus.Status(ctx); !errors.Is(err, telemetry.ErrClosed) {
		t.Fatalf("Status after stop = %v, want ErrClosed", err)
	}
}

func TestEngineCancel(t *testing.T) {
	sim := newTestSim(t, smallParams(), 6)
	eng := NewEngine(sim, telemetry.NewBus(4))
	eng.Interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := eng.Run(ctx); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
	if sim.StepCount == 0 {
		t.Fatal("no steps ran before the deadline")
	}
}
