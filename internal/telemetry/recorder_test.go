package telemetry

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stuphys1729/SenHons/internal/space"
)

type memorySink struct {
	got []Message
	err error
}

func (s *memorySink) Write(m Message) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, m)
	return nil
}

func sampleMessages() []Message {
	line, _ := space.NewExtent(100)
	return []Message{
		{Kind: KindLayout, Layout: &Layout{
			RunID:     "run-1",
			Seed:      7,
			Extent:    line,
			Locations: []Location{{Name: "Aberdeen", Weight: 2, X: 10, Y: 1}},
			Patients:  []space.Position{{X: 0.5, Y: 0.2}},
		}},
		{Kind: KindFrame, Frame: &Frame{
			Step:            10,
			SellerX:         []float64{1, 2},
			SellerQuality:   []float64{0.25, 0.75},
			SupplierX:       []float64{50},
			SupplierQuality: []float64{0.5},
			Stats:           StepStats{Step: 10, Sales: 4, MeanQuality: 0.6, Sellers: 2, Suppliers: 1},
		}},
		Stop(),
	}
}

func TestRecorderWritesReadableLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.jsonl.zst")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	src := make(chan Message, 8)
	mem := &memorySink{}
	for _, m := range sampleMessages() {
		src <- m
	}
	close(src)
	Pump(src, rec, mem)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadLog(path)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(got) != 3 || len(mem.got) != 3 {
		t.Fatalf("recorded %d, memory %d; want 3 each", len(got), len(mem.got))
	}
	if got[1].Frame == nil || got[1].Frame.SellerY != nil || got[1].Frame.Stats.Sales != 4 {
		t.Fatalf("frame did not survive: %+v", got[1].Frame)
	}
	if got[2].Kind != KindStop {
		t.Fatalf("last kind = %q, want stop", got[2].Kind)
	}
	if err := rec.Write(Stop()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after Close = %v, want ErrClosed", err)
	}
}

func TestPumpSkipsFailedSink(t *testing.T) {
	src := make(chan Message, 4)
	bad := &memorySink{err: errors.New("disk full")}
	good := &memorySink{}
	src <- frameAt(1)
	src <- frameAt(2)
	src <- Stop()
	src <- frameAt(3)
	Pump(src, bad, good)
	if len(good.got) != 3 {
		t.Fatalf("good sink got %d messages, want 3 (stop ends the pump)", len(good.got))
	}
}

func TestMessagesMatchSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "message.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	for _, m := range sampleMessages() {
		raw, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("%s message: %v", m.Kind, err)
		}
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"kind":"frame"}`), &bad)
	if err := schema.Validate(bad); err == nil {
		t.Fatal("frame message without a frame passed validation")
	}
}
