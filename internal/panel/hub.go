// Package panel connects preview schedulers to hosted views over WebSocket.
//
// Each preview has at most one attached view. Outbound messages are the
// wire.OutboundMessage envelopes; inbound frames are decoded and handed to the
// preview's Dispatcher.
package panel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
)

// ErrNoView is returned when a message targets a preview with no attached
// view.
var ErrNoView = errors.New("no view attached")

const defaultWriteTimeout = 5 * time.Second

// Dispatcher receives decoded view messages.
type Dispatcher interface {
	Dispatch(msg wire.InboundMessage) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(msg wire.InboundMessage) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(msg wire.InboundMessage) error { return f(msg) }

// Hooks are called as a view comes and goes.
type Hooks struct {
	OnAttach func()
	OnDetach func()
}

// Hub owns the view connections of every preview.
type Hub struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu    sync.RWMutex
	views map[string]*view
}

type view struct {
	conn *websocket.Conn

	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

// Option configures a Hub.
type Option func(*Hub)

// WithCheckOrigin restricts which origins may attach a view.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// WithWriteTimeout bounds every outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// NewHub returns a hub accepting views from any origin.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
		views:        make(map[string]*view),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades the request and attaches the connection as the view of
// preview id, replacing any previous view. It blocks until the connection
// closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id string, d Dispatcher, hooks Hooks) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		logger.Warnf("[panel] %s: websocket upgrade failed: %v", id, err)
		return err
	}
	v := &view{conn: conn}

	h.mu.Lock()
	prev := h.views[id]
	h.views[id] = v
	h.mu.Unlock()

	if prev != nil {
		logger.Infof("[panel] %s: replacing attached view", id)
		_ = prev.conn.Close()
	}
	logger.Infof("[panel] %s: view attached from %s", id, r.RemoteAddr)
	if hooks.OnAttach != nil {
		hooks.OnAttach()
	}

	defer func() {
		h.mu.Lock()
		current := h.views[id] == v
		if current {
			delete(h.views, id)
		}
		h.mu.Unlock()
		_ = conn.Close()

		logger.Infof("[panel] %s: view detached", id)
		if current && hooks.OnDetach != nil {
			hooks.OnDetach()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[panel] %s: read error: %v", id, err)
			}
			return nil
		}

		msg, err := wire.DecodeInbound(data)
		if err != nil {
			logger.Warnf("[panel] %s: skipping malformed frame: %v", id, err)
			continue
		}
		logger.Tracef("[panel] %s: received %s", id, msg.Command)
		if err := d.Dispatch(msg); err != nil {
			logger.Debugf("[panel] %s: dispatch %s: %v", id, msg.Command, err)
		}
	}
}

// Attached reports whether preview id has a view.
func (h *Hub) Attached(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.views[id]
	return ok
}

// Detach closes the view of preview id, if any.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	v := h.views[id]
	delete(h.views, id)
	h.mu.Unlock()

	if v != nil {
		v.close()
	}
}

// CloseAll closes every attached view.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	views := h.views
	h.views = make(map[string]*view)
	h.mu.Unlock()

	for _, v := range views {
		v.close()
	}
}

// Panel returns the view handle for preview id. The view need not be
// attached yet; sends fail with ErrNoView until it is.
func (h *Hub) Panel(id string) *Panel {
	return &Panel{hub: h, id: id}
}

func (h *Hub) send(ctx context.Context, id string, msg wire.OutboundMessage) error {
	h.mu.RLock()
	v := h.views[id]
	h.mu.RUnlock()
	if v == nil {
		return ErrNoView
	}

	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	if err := v.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return v.conn.WriteJSON(msg)
}

func (v *view) close() {
	v.writeMu.Lock()
	_ = v.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "preview closed"),
		time.Now().Add(time.Second))
	v.writeMu.Unlock()
	_ = v.conn.Close()
}
