package wire

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/g960059/agtmux/internal/daemon"
	"github.com/g960059/agtmux/internal/model"
)

// conn is the minimal interface both transports (gorilla/websocket.Conn
// and a Unix-socket net.Conn line-writer) satisfy, so Hub doesn't need to
// know which one it's talking to.
type conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	conn          conn
	send          chan []byte
	subscribed    bool
	summaryOnly   bool
	wantState     bool
	wantTopology  bool
}

func newClient(c conn) *client {
	cl := &client{conn: c, send: make(chan []byte, 64)}
	go cl.writePump()
	return cl
}

func (c *client) writePump() {
	for msg := range c.send {
		var raw json.RawMessage = msg
		if err := c.conn.WriteJSON(raw); err != nil {
			return
		}
	}
}

func (c *client) closeSend() { close(c.send) }

// Hub dispatches JSON-RPC requests against a daemon.Projection and
// throttle-broadcasts state_changed notifications to subscribed clients,
// grounded on the teacher's Broadcaster (internal/ws/broadcast.go)
// client-map + buffered-send-channel + AfterFunc-throttled-flush idiom,
// adapted from session-delta broadcasting to version-based change-log
// broadcasting.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	projection *daemon.Projection
	throttle   time.Duration
	flushTimer *time.Timer
	flushMu    sync.Mutex
	lastSent   uint64
	healthHook func() []SourceHealthEntry
}

// NewHub builds a Hub backed by projection, flushing at most once per
// throttle interval.
func NewHub(projection *daemon.Projection, throttle time.Duration) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		projection: projection,
		throttle:   throttle,
	}
}

// SetHealthHook wires the callback list_source_health dispatches to,
// grounded on the teacher's Broadcaster.SetHealthHook
// (internal/ws/broadcast.go) indirection so Hub need not import package
// runtime directly.
func (h *Hub) SetHealthHook(hook func() []SourceHealthEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthHook = hook
}

// AddClient registers a new connection. Nothing is sent to it until it
// makes a request.
func (h *Hub) AddClient(c conn) *client {
	cl := newClient(c)
	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()
	return cl
}

// RemoveClient unregisters a connection, closing its send channel.
func (h *Hub) RemoveClient(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		cl.closeSend()
	}
	h.mu.Unlock()
}

// Dispatch handles a single JSON-RPC request and returns the frame to
// write back: a result Response for every known method (subscribe and
// subscribe_summary included), a method-not-found error otherwise.
func (h *Hub) Dispatch(cl *client, req Request) *Response {
	if !IsKnownMethod(req.Method) {
		resp := NewError(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
		return &resp
	}

	switch req.Method {
	case MethodListPanes:
		resp := NewResult(req.ID, h.projection.ListPanes())
		return &resp
	case MethodListSessions:
		resp := NewResult(req.ID, h.projection.ListSessions())
		return &resp
	case MethodListSourceHealth:
		resp := NewResult(req.ID, h.sourceHealthSnapshot())
		return &resp
	case MethodSubscribe:
		var params SubscribeParams
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &params)
		}
		cl.subscribed = true
		cl.summaryOnly = false
		if len(params.Events) == 0 {
			cl.wantState = true
			cl.wantTopology = true
		} else {
			cl.wantState = false
			cl.wantTopology = false
			for _, e := range params.Events {
				switch e {
				case "state":
					cl.wantState = true
				case "topology":
					cl.wantTopology = true
				}
			}
		}
		resp := NewResult(req.ID, map[string]bool{"subscribed": true})
		return &resp
	case MethodSubscribeSummary:
		cl.subscribed = true
		cl.summaryOnly = true
		resp := NewResult(req.ID, map[string]bool{"subscribed": true})
		h.pushSummary(cl)
		return &resp
	}
	return nil
}

// sourceHealthSnapshot builds the list_source_health result from the
// wired-in hook (package runtime), or an empty slice if none is set
// (e.g. in tests that exercise Hub without a live source runtime).
func (h *Hub) sourceHealthSnapshot() []SourceHealthEntry {
	h.mu.RLock()
	hook := h.healthHook
	h.mu.RUnlock()
	if hook == nil {
		return []SourceHealthEntry{}
	}
	return hook()
}

// pushSummary computes and sends an immediate summary snapshot to a single
// client, per spec §6's subscribe_summary "ack + immediate summary" rule.
func (h *Hub) pushSummary(cl *client) {
	notif := NewNotification(NotifySummary, h.summarySnapshot())
	data, err := json.Marshal(notif)
	if err != nil {
		log.Printf("wire: summary marshal error: %v", err)
		return
	}
	select {
	case cl.send <- data:
	default:
		log.Printf("wire: client too slow, disconnecting")
		h.RemoveClient(cl)
	}
}

func (h *Hub) summarySnapshot() summaryCounts {
	counts := make(map[string]int)
	for _, pane := range h.projection.ListPanes() {
		counts[pane.ActivityState.String()]++
	}
	return summaryCounts{ActivityState: counts}
}

// NotifyChanged schedules a throttled state_changed push to every
// subscribed client. Safe to call from any goroutine that ingests events
// into the projection.
func (h *Hub) NotifyChanged() {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()
	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.throttle, h.flush)
	}
}

func (h *Hub) flush() {
	h.flushMu.Lock()
	h.flushTimer = nil
	h.flushMu.Unlock()

	version := h.projection.Version()
	changes := h.projection.ChangesSince(h.lastSentVersion())
	if len(changes) == 0 {
		return
	}
	h.setLastSentVersion(version)

	var stateChanges []model.StateChange
	var added []model.StateChange
	var removed []model.StateChange
	for _, c := range changes {
		switch c.Kind {
		case model.ChangeAdded:
			added = append(added, c)
		case model.ChangeRemoved:
			removed = append(removed, c)
		default:
			stateChanges = append(stateChanges, c)
		}
	}

	if len(stateChanges) > 0 {
		h.broadcastTo(NewNotification(NotifyStateChanged, changesPayload{Version: version, Changes: stateChanges}),
			func(c *client) bool { return c.wantState && !c.summaryOnly })
	}
	for _, c := range added {
		h.broadcastTo(NewNotification(NotifyPaneAdded, paneTopologyPayload{Version: c.Version, PaneId: c.PaneId}),
			func(c *client) bool { return c.wantTopology && !c.summaryOnly })
	}
	for _, c := range removed {
		h.broadcastTo(NewNotification(NotifyPaneRemoved, paneTopologyPayload{Version: c.Version, PaneId: c.PaneId}),
			func(c *client) bool { return c.wantTopology && !c.summaryOnly })
	}

	h.broadcastSummary()
}

// broadcastSummary pushes a fresh summary snapshot to every summaryOnly
// client, per spec §6's "further snapshots on any state change" rule.
func (h *Hub) broadcastSummary() {
	h.mu.RLock()
	anySummary := false
	for c := range h.clients {
		if c.subscribed && c.summaryOnly {
			anySummary = true
			break
		}
	}
	h.mu.RUnlock()
	if !anySummary {
		return
	}
	notif := NewNotification(NotifySummary, h.summarySnapshot())
	h.broadcastTo(notif, func(c *client) bool { return c.summaryOnly })
}

func (h *Hub) lastSentVersion() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSent
}

func (h *Hub) setLastSentVersion(v uint64) {
	h.mu.Lock()
	h.lastSent = v
	h.mu.Unlock()
}

type changesPayload struct {
	Version uint64              `json:"version"`
	Changes []model.StateChange `json:"changes"`
}

type paneTopologyPayload struct {
	Version uint64        `json:"version"`
	PaneId  *model.PaneId `json:"pane_id"`
}

// broadcastTo sends notif to every subscribed client matching want,
// generalizing the teacher's Broadcaster.broadcast all-subscribers fanout
// (internal/ws/broadcast.go) into the per-filter fanout spec §6's events
// filter and summaryOnly split require.
func (h *Hub) broadcastTo(notif Notification, want func(*client) bool) {
	data, err := json.Marshal(notif)
	if err != nil {
		log.Printf("wire: notification marshal error: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed && want(c) {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("wire: client too slow, disconnecting")
			h.RemoveClient(c)
		}
	}
}
