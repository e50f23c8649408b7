package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.IncConnAccepted()
	m.IncConnAccepted()
	m.IncConnClosed()
	m.IncConnAuthFailed()
	m.IncConnPanicked()
	m.IncRoomCreated()
	m.IncRoomJoined()
	m.IncRoomRefused()
	m.IncRoomRemoved()
	m.IncRelayed()
	m.IncPings()
	m.AddLagDropped(3)
	snap := m.Snapshot()
	if snap.Conns.Accepted != 2 {
		t.Fatalf("expected accepted=2, got %d", snap.Conns.Accepted)
	}
	if snap.Conns.Closed != 1 || snap.Conns.AuthFailed != 1 || snap.Conns.Panicked != 1 {
		t.Fatalf("unexpected conn counts: %+v", snap.Conns)
	}
	if snap.Rooms.Created != 1 || snap.Rooms.Joined != 1 || snap.Rooms.Refused != 1 || snap.Rooms.Removed != 1 {
		t.Fatalf("unexpected room counts: %+v", snap.Rooms)
	}
	if snap.Relay.Relayed != 1 || snap.Relay.Pings != 1 || snap.Relay.LagDropped != 3 {
		t.Fatalf("unexpected relay counts: %+v", snap.Relay)
	}
}

func TestWriteSnapshot(t *testing.T) {
	m := New()
	m.IncRelayed()
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if snap.Relay.Relayed != 1 {
		t.Fatalf("expected relayed=1, got %d", snap.Relay.Relayed)
	}
	if err := m.WriteSnapshot(""); err != nil {
		t.Fatalf("empty path must be a no-op, got %v", err)
	}
}
