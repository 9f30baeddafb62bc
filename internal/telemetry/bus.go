package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned for control requests made after the simulation stopped.
var ErrClosed = errors.New("telemetry bus closed")

// Op is a control operation.
type Op uint8

const (
	OpStatus Op = iota
	OpPause
	OpResume
	OpStop
	OpInspect
)

func (o Op) String() string {
	switch o {
	case OpStatus:
		return "status"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpStop:
		return "stop"
	case OpInspect:
		return "inspect"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Request is a control request waiting for the simulation loop to answer it.
type Request struct {
	Op    Op
	Agent uint64
	reply chan Reply
}

// Reply answers a control request.
type Reply struct {
	Status Status
	Agent  *AgentView
	Err    error
}

// Respond sends the reply. It never blocks; each request is answered once.
func (r Request) Respond(rep Reply) {
	select {
	case r.reply <- rep:
	default:
	}
}

// Bus is the bounded one-way snapshot feed plus the synchronous control
// channel between the simulation loop and its consumers. Publish never blocks:
// when the feed is full the oldest message is discarded.
type Bus struct {
	mu       sync.Mutex
	frames   chan Message
	requests chan Request
	done     chan struct{}
	closed   bool
	dropped  atomic.Uint64
}

// NewBus creates a bus buffering up to capacity messages.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		frames:   make(chan Message, capacity),
		requests: make(chan Request),
		done:     make(chan struct{}),
	}
}

// Publish queues a message, evicting the oldest one when the queue is full.
func (b *Bus) Publish(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pushLocked(m)
}

func (b *Bus) pushLocked(m Message) {
	for {
		select {
		case b.frames <- m:
			return
		default:
		}
		select {
		case <-b.frames:
			b.dropped.Add(1)
		default:
		}
	}
}

// Frames is the feed consumers read from. It delivers a stop message and is
// then closed when the bus closes.
func (b *Bus) Frames() <-chan Message {
	return b.frames
}

// Dropped returns how many messages were evicted unread.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close publishes the stop sentinel and shuts the bus down. Pending and
// future control requests fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.pushLocked(Stop())
	close(b.frames)
	close(b.done)
}

// Requests is read by the simulation loop only.
func (b *Bus) Requests() <-chan Request {
	return b.requests
}

func (b *Bus) call(ctx context.Context, op Op, agent uint64) (Reply, error) {
	req := Request{Op: op, Agent: agent, reply: make(chan Reply, 1)}
	select {
	case b.requests <- req:
	case <-b.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep, rep.Err
	case <-b.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Status asks the simulation for a summary.
func (b *Bus) Status(ctx context.Context) (Status, error) {
	rep, err := b.call(ctx, OpStatus, 0)
	return rep.Status, err
}

// Pause holds the simulation between steps.
func (b *Bus) Pause(ctx context.Context) (Status, error) {
	rep, err := b.call(ctx, OpPause, 0)
	return rep.Status, err
}

// Resume continues a paused simulation.
func (b *Bus) Resume(ctx context.Context) (Status, error) {
	rep, err := b.call(ctx, OpResume, 0)
	return rep.Status, err
}

// Stop ends the run after the current step.
func (b *Bus) Stop(ctx context.Context) (Status, error) {
	rep, err := b.call(ctx, OpStop, 0)
	return rep.Status, err
}

// Inspect returns the serialized state of one agent.
func (b *Bus) Inspect(ctx context.Context, id uint64) (AgentView, error) {
	rep, err := b.call(ctx, OpInspect, id)
	if err != nil {
		return AgentView{}, err
	}
	if rep.Agent == nil {
		return AgentView{}, fmt.Errorf("inspect %d: empty reply", id)
	}
	return *rep.Agent, nil
}
