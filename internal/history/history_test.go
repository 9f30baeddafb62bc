package history

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/stuphys1729/SenHons/internal/telemetry"
)

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MEDTRUST_PG_DSN")
	if dsn == "" {
		t.Skip("MEDTRUST_PG_DSN is required for the archive test")
	}
	return dsn
}

func TestRecordStep(t *testing.T) {
	a, err := OpenPostgres(requireDSN(t))
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	run := uuid.NewString()
	defer a.DeleteRun(ctx, run)

	for step := 1; step <= 3; step++ {
		if err := a.RecordStep(ctx, run, telemetry.StepStats{Step: step, Sales: step}); err != nil {
			t.Fatalf("RecordStep: %v", err)
		}
	}
	// Re-recording a step replaces it.
	if err := a.RecordStep(ctx, run, telemetry.StepStats{Step: 2, Sales: 99}); err != nil {
		t.Fatalf("RecordStep again: %v", err)
	}

	rows, err := a.Steps(ctx, run)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(rows) != 3 || rows[1].Sales != 99 || rows[2].Step != 3 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestRowFrom(t *testing.T) {
	r := rowFrom("x", telemetry.StepStats{Step: 4, Sales: 7, TopSeller: 12, MeanQuality: 0.25})
	if r.RunID != "x" || r.Step != 4 || r.Sales != 7 || r.TopSeller != 12 || r.MeanQuality != 0.25 {
		t.Fatalf("row = %+v", r)
	}
}
