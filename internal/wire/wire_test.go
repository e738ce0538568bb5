package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/g960059/agtmux/internal/daemon"
	"github.com/g960059/agtmux/internal/model"
)

type fakeConn struct {
	writes [][]byte
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.writes = append(f.writes, data)
	return nil
}
func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestOriginAllowlistDefaults(t *testing.T) {
	a := NewOriginAllowlist(nil)
	allowed := []string{"", "null", "tauri://localhost", "http://localhost:3000", "http://127.0.0.1:9000", "https://localhost"}
	for _, o := range allowed {
		if !a.Allowed(o) {
			t.Fatalf("expected %q to be allowed", o)
		}
	}
	if a.Allowed("http://evil.example.com") {
		t.Fatalf("expected arbitrary remote origin to be rejected")
	}
}

func TestOriginAllowlistExtra(t *testing.T) {
	a := NewOriginAllowlist([]string{"https://app.example.com"})
	if !a.Allowed("https://app.example.com") {
		t.Fatalf("expected configured extra origin to be allowed")
	}
	if a.Allowed("https://other.example.com") {
		t.Fatalf("expected unconfigured origin to be rejected")
	}
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)
	resp := hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: "bogus"})
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("got %+v", resp)
	}
}

func TestDispatchListPanesAndSessions(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)

	resp := hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodListPanes})
	if resp == nil || resp.Error != nil {
		t.Fatalf("got %+v", resp)
	}
	resp = hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodListSessions})
	if resp == nil || resp.Error != nil {
		t.Fatalf("got %+v", resp)
	}
}

func TestDispatchSubscribeMarksClient(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)

	resp := hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodSubscribe})
	if resp == nil || resp.Error != nil || !cl.subscribed || cl.summaryOnly {
		t.Fatalf("expected subscribe to mark client subscribed, non-summary: cl=%+v resp=%+v", cl, resp)
	}

	resp = hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodSubscribeSummary})
	if resp == nil || !cl.summaryOnly {
		t.Fatalf("expected subscribe_summary to set summaryOnly")
	}
}

func TestParseRequestRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseRequest([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDispatchSubscribeDefaultsToBothFilters(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)

	hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodSubscribe})
	if !cl.wantState || !cl.wantTopology {
		t.Fatalf("expected subscribe with no params to want both filters, got %+v", cl)
	}
}

func TestDispatchSubscribeHonorsEventsFilter(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)
	params := json.RawMessage(`{"events":["topology"]}`)

	hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodSubscribe, Params: params})
	if cl.wantState || !cl.wantTopology {
		t.Fatalf("expected subscribe to honor events:[topology] filter, got %+v", cl)
	}
}

func TestDispatchSubscribeSummaryPushesImmediateSummary(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	// Built directly (not via newClient) so no writePump goroutine races
	// with this test's direct read from cl.send.
	cl := &client{conn: &fakeConn{}, send: make(chan []byte, 64)}
	id := json.RawMessage(`1`)

	resp := hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodSubscribeSummary})
	if resp == nil || resp.Error != nil {
		t.Fatalf("got %+v", resp)
	}

	select {
	case data := <-cl.send:
		var notif Notification
		if err := json.Unmarshal(data, &notif); err != nil {
			t.Fatalf("failed to unmarshal pushed summary: %v", err)
		}
		if notif.Method != NotifySummary {
			t.Fatalf("expected immediate %q push, got %q", NotifySummary, notif.Method)
		}
	default:
		t.Fatalf("expected subscribe_summary to push an immediate summary")
	}
}

func TestDispatchListSourceHealthUsesHook(t *testing.T) {
	hub := NewHub(daemon.New(), 10*time.Millisecond)
	hub.SetHealthHook(func() []SourceHealthEntry {
		return []SourceHealthEntry{{SourceId: "codex-1", HealthState: "Healthy"}}
	})
	cl := newClient(&fakeConn{})
	id := json.RawMessage(`1`)

	resp := hub.Dispatch(cl, Request{JSONRPC: JSONRPCVersion, ID: id, Method: MethodListSourceHealth})
	if resp == nil || resp.Error != nil {
		t.Fatalf("got %+v", resp)
	}
	entries, ok := resp.Result.([]SourceHealthEntry)
	if !ok || len(entries) != 1 || entries[0].SourceId != "codex-1" {
		t.Fatalf("expected the wired hook's entries, got %+v", resp.Result)
	}
}

func TestFlushSplitsTopologyFromStateNotifications(t *testing.T) {
	proj := daemon.New()
	hub := NewHub(proj, time.Hour)

	// Built directly (not via newClient) so no writePump goroutine races
	// with this test's direct reads from cl.send.
	stateClient := &client{conn: &fakeConn{}, send: make(chan []byte, 64), subscribed: true, wantState: true}
	topoClient := &client{conn: &fakeConn{}, send: make(chan []byte, 64), subscribed: true, wantTopology: true}

	hub.mu.Lock()
	hub.clients[stateClient] = true
	hub.clients[topoClient] = true
	hub.mu.Unlock()

	now := time.Unix(0, 0)
	ev := model.NewSourceEvent("e1", model.ProviderCodex, model.SourceKindCodexAppserver, now, "s1", "activity.running", map[string]any{"provider_hint": true}, 1.0).WithPane("%1", 1, now)
	proj.Ingest([]model.SourceEventV2{ev}, now)

	hub.flush()

	drained := func(cl *client) []Notification {
		var out []Notification
		for {
			select {
			case data := <-cl.send:
				var n Notification
				if err := json.Unmarshal(data, &n); err == nil {
					out = append(out, n)
				}
			default:
				return out
			}
		}
	}

	stateNotifs := drained(stateClient)
	foundStateChanged := false
	for _, n := range stateNotifs {
		if n.Method == NotifyStateChanged {
			foundStateChanged = true
		}
		if n.Method == NotifyPaneAdded {
			t.Fatalf("state-only subscriber should not receive pane_added")
		}
	}
	if !foundStateChanged {
		t.Fatalf("expected state-only subscriber to receive state_changed, got %+v", stateNotifs)
	}

	topoNotifs := drained(topoClient)
	foundPaneAdded := false
	for _, n := range topoNotifs {
		if n.Method == NotifyPaneAdded {
			foundPaneAdded = true
		}
		if n.Method == NotifyStateChanged {
			t.Fatalf("topology-only subscriber should not receive state_changed")
		}
	}
	if !foundPaneAdded {
		t.Fatalf("expected topology-only subscriber to receive pane_added, got %+v", topoNotifs)
	}
}
