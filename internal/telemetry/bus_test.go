package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func frameAt(step int) Message {
	return Message{Kind: KindFrame, Frame: &Frame{Step: step}}
}

func TestPublishDropsOldest(t *testing.T) {
	b := NewBus(3)
	for i := 1; i <= 5; i++ {
		b.Publish(frameAt(i))
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped = %d, want 2", got)
	}
	for _, want := range []int{3, 4, 5} {
		m := <-b.Frames()
		if m.Frame == nil || m.Frame.Step != want {
			t.Fatalf("got %+v, want step %d", m, want)
		}
	}
}

func TestCloseSendsStopAndCloses(t *testing.T) {
	b := NewBus(1)
	b.Publish(frameAt(1))
	b.Close()
	b.Publish(frameAt(2))

	var kinds []Kind
	for m := range b.Frames() {
		kinds = append(kinds, m.Kind)
	}
	if len(kinds) != 1 || kinds[0] != KindStop {
		t.Fatalf("feed after close = %v, want [stop]", kinds)
	}
}

func TestControlRoundTrip(t *testing.T) {
	b := NewBus(4)
	served := make(chan struct{})
	go func() {
		defer close(served)
		paused := false
		for req := range b.Requests() {
			switch req.Op {
			case OpPause:
				paused = true
			case OpResume:
				paused = false
			case OpInspect:
				if req.Agent != 42 {
					req.Respond(Reply{Err: errors.New("no such agent")})
					continue
				}
				req.Respond(Reply{Agent: &AgentView{ID: 42, Role: "seller"}})
				continue
			case OpStop:
				req.Respond(Reply{Status: Status{Paused: paused}})
				return
			}
			req.Respond(Reply{Status: Status{Paused: paused}})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := b.Pause(ctx)
	if err != nil || !st.Paused {
		t.Fatalf("Pause = %+v, %v", st, err)
	}
	v, err := b.Inspect(ctx, 42)
	if err != nil || v.ID != 42 {
		t.Fatalf("Inspect = %+v, %v", v, err)
	}
	if _, err := b.Inspect(ctx, 7); err == nil {
		t.Fatal("Inspect of unknown agent succeeded")
	}
	st, err = b.Resume(ctx)
	if err != nil || st.Paused {
		t.Fatalf("Resume = %+v, %v", st, err)
	}
	if _, err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-served

	b.Close()
	if _, err := b.Status(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Status after close = %v, want ErrClosed", err)
	}
}

func TestControlHonorsContext(t *testing.T) {
	b := NewBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Status(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Status with nobody serving = %v, want deadline exceeded", err)
	}
}
