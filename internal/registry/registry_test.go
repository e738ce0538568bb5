package registry

import (
	"testing"
	"time"
)

func TestProtocolMismatchRejected(t *testing.T) {
	r := New(1, 2)
	now := time.Unix(0, 0)
	resp := r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 3}, now)
	if resp.Outcome != Rejected || resp.Reason != "protocol mismatch" {
		t.Fatalf("got %+v", resp)
	}
}

func TestNewSourceAcceptedAsActive(t *testing.T) {
	r := New(1, 2)
	now := time.Unix(0, 0)
	resp := r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, now)
	if resp.Outcome != Accepted {
		t.Fatalf("got %+v", resp)
	}
	entries := r.List()
	if len(entries) != 1 || entries[0].Status != Active {
		t.Fatalf("got %+v", entries)
	}
}

func TestRevokedSourceCannotReconnect(t *testing.T) {
	r := New(1, 2)
	now := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, now)
	r.Revoke("s1")
	resp := r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, now.Add(time.Second))
	if resp.Outcome != Rejected || resp.Reason != "source revoked" {
		t.Fatalf("got %+v", resp)
	}
}

func TestActiveSourceHelloRefreshesHeartbeatAndSocket(t *testing.T) {
	r := New(1, 2)
	t0 := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1, SocketPath: "/tmp/a"}, t0)
	t1 := t0.Add(5 * time.Second)
	resp := r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1, SocketPath: "/tmp/b"}, t1)
	if resp.Outcome != Accepted {
		t.Fatalf("got %+v", resp)
	}
	e := r.List()[0]
	if !e.LastHeartbeat.Equal(t1) || e.SocketPath != "/tmp/b" {
		t.Fatalf("got %+v", e)
	}
}

func TestStaleSourceReactivatesOnHello(t *testing.T) {
	r := New(1, 2)
	t0 := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, t0)
	r.SetStalenessWindow(10 * time.Second)
	stale := r.CheckStaleness(t0.Add(11 * time.Second))
	if len(stale) != 1 || stale[0] != "s1" {
		t.Fatalf("expected s1 stale, got %v", stale)
	}
	resp := r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, t0.Add(20*time.Second))
	if resp.Outcome != Accepted {
		t.Fatalf("stale source should reactivate, got %+v", resp)
	}
	if r.List()[0].Status != Active {
		t.Fatalf("expected Active after re-hello")
	}
}

func TestHeartbeatUnknownSourceReturnsFalse(t *testing.T) {
	r := New(1, 2)
	if r.Heartbeat("ghost", time.Unix(0, 0)) {
		t.Fatalf("expected false for unknown source")
	}
}

func TestCleanupRemovesStaleAndRevokedOnly(t *testing.T) {
	r := New(1, 2)
	t0 := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, t0)
	r.HandleHello(HelloRequest{SourceId: "s2", ProtocolVersion: 1}, t0)
	r.Revoke("s2")
	r.Cleanup()
	entries := r.List()
	if len(entries) != 1 || entries[0].Id != "s1" {
		t.Fatalf("expected only s1 to remain, got %+v", entries)
	}
}

func TestListSortedById(t *testing.T) {
	r := New(1, 2)
	t0 := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "zzz", ProtocolVersion: 1}, t0)
	r.HandleHello(HelloRequest{SourceId: "aaa", ProtocolVersion: 1}, t0)
	entries := r.List()
	if entries[0].Id != "aaa" || entries[1].Id != "zzz" {
		t.Fatalf("got %+v", entries)
	}
}

func TestSnapshotMatchesList(t *testing.T) {
	r := New(1, 2)
	t0 := time.Unix(0, 0)
	r.HandleHello(HelloRequest{SourceId: "s1", ProtocolVersion: 1}, t0)
	if len(r.Snapshot()) != len(r.List()) || r.Snapshot()[0].Id != "s1" {
		t.Fatalf("expected Snapshot to mirror List, got %+v", r.Snapshot())
	}
}
