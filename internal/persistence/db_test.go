package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stuphys1729/SenHons/internal/engine"
	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "medtrust.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadWithoutState(t *testing.T) {
	db := openTemp(t)
	if db.HasRunState() {
		t.Fatal("fresh database reports a saved run")
	}
	if _, err := db.LoadRunState(); !errors.Is(err, ErrNoState) {
		t.Fatalf("LoadRunState = %v, want ErrNoState", err)
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	p := engine.DefaultParams()
	p.Patients, p.Sellers, p.Suppliers = 30, 5, 3
	p.DynamicActors = true
	sim, err := engine.NewSimulation(p, entropy.New(17), nil, "run-a")
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	db := openTemp(t)
	if err := db.SaveRunState(sim); err != nil {
		t.Fatalf("SaveRunState: %v", err)
	}
	st, err := db.LoadRunState()
	if err != nil {
		t.Fatalf("LoadRunState: %v", err)
	}
	if st.RunID != "run-a" || st.Seed != 17 || st.Step != 20 || st.NextID != sim.Spawner.NextID() {
		t.Fatalf("meta = %+v", st)
	}
	if len(st.Pop.Patients) != len(sim.Patients) || len(st.Pop.Sellers) != len(sim.Sellers) ||
		len(st.Pop.Suppliers) != len(sim.Suppliers) {
		t.Fatalf("population sizes differ after reload")
	}
	for i, s := range sim.Sellers {
		got := st.Pop.Sellers[i]
		if got.ID != s.ID || got.Stock != s.Stock || got.Trials != s.Trials || got.Position != s.Position {
			t.Fatalf("seller %d reloaded as %+v, want %+v", s.ID, got, s)
		}
		if len(got.Experience) != len(s.Experience) {
			t.Fatalf("seller %d ledger size %d, want %d", s.ID, len(got.Experience), len(s.Experience))
		}
	}
	for i, pt := range sim.Patients {
		got := st.Pop.Patients[i]
		for id, r := range pt.Experience {
			if got.Experience[id] != r {
				t.Fatalf("patient %d record for %d = %+v, want %+v", pt.ID, id, got.Experience[id], r)
			}
		}
	}

	restored, err := engine.Restore(p, entropy.New(st.Seed), nil, st.RunID, st.Pop, st.Step, st.NextID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := restored.Step(); err != nil {
		t.Fatalf("step after restore: %v", err)
	}
	if restored.StepCount != 21 {
		t.Fatalf("restored step = %d, want 21", restored.StepCount)
	}
}

func TestStepHistory(t *testing.T) {
	db := openTemp(t)
	for step := 1; step <= 5; step++ {
		if err := db.SaveStep("r", telemetry.StepStats{Step: step, Sales: step * 10, MeanQuality: 0.5}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}
	}
	if err := db.SaveStep("other", telemetry.StepStats{Step: 9}); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	got, err := db.StepHistory("r", 3)
	if err != nil {
		t.Fatalf("StepHistory: %v", err)
	}
	if len(got) != 3 || got[0].Step != 3 || got[2].Step != 5 || got[2].Sales != 50 {
		t.Fatalf("history = %+v", got)
	}
}
