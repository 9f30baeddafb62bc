package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

type fakeCtl struct {
	st      telemetry.Status
	stopped bool
	history []telemetry.StepStats
}

func (f *fakeCtl) Status(context.Context) (telemetry.Status, error) {
	if f.stopped {
		return f.st, telemetry.ErrClosed
	}
	return f.st, nil
}

func (f *fakeCtl) Pause(ctx context.Context) (telemetry.Status, error) {
	f.st.Paused = true
	return f.Status(ctx)
}

func (f *fakeCtl) Resume(ctx context.Context) (telemetry.Status, error) {
	f.st.Paused = false
	return f.Status(ctx)
}

func (f *fakeCtl) Stop(ctx context.Context) (telemetry.Status, error) {
	st, err := f.Status(ctx)
	f.stopped = true
	return st, err
}

func (f *fakeCtl) Inspect(_ context.Context, id uint64) (telemetry.AgentView, error) {
	if id != 3 {
		return telemetry.AgentView{}, agents.ErrUnknownAgent
	}
	return telemetry.AgentView{
		ID: 3, Role: "patient", Trials: 9, MinPurchase: 1,
		Experience: []telemetry.ExperienceView{
			{Vendor: 101, Successes: 6, Trials: 8, Distance: 1.5, Active: true},
			{Vendor: 102, Successes: 0, Trials: 1, Distance: 4, Active: false},
		},
	}, nil
}

type historyCtl struct{ fakeCtl }

func (h *historyCtl) History(_ context.Context, limit int) ([]telemetry.StepStats, error) {
	if limit < len(h.history) {
		return h.history[len(h.history)-limit:], nil
	}
	return h.history, nil
}

func newTestShell(ctl Controller) (*Shell, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Shell{ctl: ctl, out: &buf}, &buf
}

func TestExecCommands(t *testing.T) {
	ctl := &fakeCtl{st: telemetry.Status{RunID: "run-1", Step: 12345, Patients: 100, TotalSales: 1234567, MeanQuality: 0.5}}
	sh, out := newTestShell(ctl)
	ctx := context.Background()

	if err := sh.Exec(ctx, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"run-1", "running", "12,345", "1,234,567", "0.500"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("status output %q lacks %q", out.String(), want)
		}
	}

	out.Reset()
	if err := sh.Exec(ctx, "pause"); err != nil || !ctl.st.Paused {
		t.Fatalf("pause: %v", err)
	}
	if err := sh.Exec(ctx, "/resume"); err != nil || ctl.st.Paused {
		t.Fatalf("resume: %v", err)
	}

	out.Reset()
	if err := sh.Exec(ctx, "inspect 3"); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if s := out.String(); !strings.Contains(s, "patient 3") || !strings.Contains(s, "0.75") || !strings.Contains(s, "retired") {
		t.Fatalf("inspect output = %q", s)
	}
	if err := sh.Exec(ctx, "inspect 4"); !errors.Is(err, agents.ErrUnknownAgent) {
		t.Fatalf("inspect 4 = %v", err)
	}
	if err := sh.Exec(ctx, "inspect"); err == nil {
		t.Fatal("inspect without id succeeded")
	}
	if err := sh.Exec(ctx, "inspect x"); err == nil {
		t.Fatal("inspect with a bad id succeeded")
	}

	out.Reset()
	if err := sh.Exec(ctx, "bogus"); err != nil || !strings.Contains(out.String(), "Unknown command") {
		t.Fatalf("bogus = %v, %q", err, out.String())
	}
	if err := sh.Exec(ctx, "   "); err != nil {
		t.Fatalf("blank line = %v", err)
	}
	if err := sh.Exec(ctx, "history"); err == nil {
		t.Fatal("history without a historian succeeded")
	}

	if err := sh.Exec(ctx, "stop"); !errors.Is(err, errQuit) || !ctl.stopped {
		t.Fatalf("stop = %v", err)
	}
	if err := sh.Exec(ctx, "status"); !errors.Is(err, telemetry.ErrClosed) {
		t.Fatalf("status after stop = %v", err)
	}
	if err := sh.Exec(ctx, "quit"); !errors.Is(err, errQuit) {
		t.Fatalf("quit = %v", err)
	}
}

func TestExecHistory(t *testing.T) {
	ctl := &historyCtl{}
	for i := 1; i <= 20; i++ {
		ctl.history = append(ctl.history, telemetry.StepStats{Step: i * 1000, Sales: i})
	}
	sh, out := newTestShell(ctl)
	if err := sh.Exec(context.Background(), "history 2"); err != nil {
		t.Fatalf("history: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "19,000") || !strings.Contains(s, "20,000") || strings.Contains(s, "18,000") {
		t.Fatalf("history output = %q", s)
	}
	if err := sh.Exec(context.Background(), "history -1"); err == nil {
		t.Fatal("negative history count accepted")
	}
}
