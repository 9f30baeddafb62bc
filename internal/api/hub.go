package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// ErrHubClosed is returned by Write after the hub has shut down.
var ErrHubClosed = errors.New("stream hub closed")

const writeWait = 10 * time.Second

type outbound struct {
	data   []byte
	layout bool
}

// viewer is one websocket connection.
type viewer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans telemetry messages out to websocket viewers. Slow viewers are
// dropped rather than allowed to back up the feed. A viewer that joins
// mid-run is sent the last layout first.
type Hub struct {
	viewers    map[*viewer]bool
	broadcast  chan outbound
	register   chan *viewer
	unregister chan *viewer
	done       chan struct{}
	count      atomic.Int32
}

// NewHub creates a hub. Run must be started for it to deliver anything.
func NewHub() *Hub {
	return &Hub{
		viewers:    make(map[*viewer]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int { return int(h.count.Load()) }

// Run is the hub's event loop. It returns when ctx is done, closing every
// viewer.
func (h *Hub) Run(ctx context.Context) {
	var layout []byte
	defer func() {
		for v := range h.viewers {
			close(v.send)
		}
		h.viewers = nil
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case v := <-h.register:
			h.viewers[v] = true
			h.count.Add(1)
			if layout != nil {
				v.send <- layout
			}
			slog.Debug("stream viewer joined", "viewers", len(h.viewers))

		case v := <-h.unregister:
			h.drop(v)

		case out := <-h.broadcast:
			if out.layout {
				layout = out.data
			}
			for v := range h.viewers {
				select {
				case v.send <- out.data:
				default:
					slog.Warn("dropping slow stream viewer", "remote", v.conn.RemoteAddr().String())
					h.drop(v)
				}
			}
		}
	}
}

func (h *Hub) drop(v *viewer) {
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.send)
		h.count.Add(-1)
	}
}

// Write queues m for every viewer. It implements telemetry.Sink.
func (h *Hub) Write(m telemetry.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{data: data, layout: m.Kind == telemetry.KindLayout}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	v := &viewer{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- v:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "run over"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go v.writePump()
	go v.readPump()
}

// readPump discards viewer input; it exists to notice disconnects.
func (v *viewer) readPump() {
	defer func() {
		select {
		case v.hub.unregister <- v:
		case <-v.hub.done:
		}
		v.conn.Close()
	}()
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("stream viewer error", "error", err)
			}
			return
		}
	}
}

func (v *viewer) writePump() {
	defer v.conn.Close()

	for msg := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	v.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
