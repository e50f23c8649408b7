package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Conns       ConnMetrics  `json:"conns"`
	Rooms       RoomMetrics  `json:"rooms"`
	Relay       RelayMetrics `json:"relay"`
}

type ConnMetrics struct {
	Accepted   uint64 `json:"accepted"`
	Closed     uint64 `json:"closed"`
	AuthFailed uint64 `json:"auth_failed"`
	Panicked   uint64 `json:"panicked"`
}

type RoomMetrics struct {
	Created uint64 `json:"created"`
	Removed uint64 `json:"removed"`
	Joined  uint64 `json:"joined"`
	Refused uint64 `json:"refused"`
}

type RelayMetrics struct {
	Relayed    uint64 `json:"relayed"`
	Pings      uint64 `json:"pings"`
	LagDropped uint64 `json:"lag_dropped"`
}

type Metrics struct {
	connAccepted   atomic.Uint64
	connClosed     atomic.Uint64
	connAuthFailed atomic.Uint64
	connPanicked   atomic.Uint64
	roomCreated    atomic.Uint64
	roomRemoved    atomic.Uint64
	roomJoined     atomic.Uint64
	roomRefused    atomic.Uint64
	relayed        atomic.Uint64
	pings          atomic.Uint64
	lagDropped     atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConnAccepted() {
	m.connAccepted.Add(1)
}

func (m *Metrics) IncConnClosed() {
	m.connClosed.Add(1)
}

func (m *Metrics) IncConnAuthFailed() {
	m.connAuthFailed.Add(1)
}

func (m *Metrics) IncConnPanicked() {
	m.connPanicked.Add(1)
}

func (m *Metrics) IncRoomCreated() {
	m.roomCreated.Add(1)
}

func (m *Metrics) IncRoomRemoved() {
	m.roomRemoved.Add(1)
}

func (m *Metrics) IncRoomJoined() {
	m.roomJoined.Add(1)
}

func (m *Metrics) IncRoomRefused() {
	m.roomRefused.Add(1)
}

func (m *Metrics) IncRelayed() {
	m.relayed.Add(1)
}

func (m *Metrics) IncPings() {
	m.pings.Add(1)
}

func (m *Metrics) AddLagDropped(n uint64) {
	m.lagDropped.Add(n)
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Conns: ConnMetrics{
			Accepted:   m.connAccepted.Load(),
			Closed:     m.connClosed.Load(),
			AuthFailed: m.connAuthFailed.Load(),
			Panicked:   m.connPanicked.Load(),
		},
		Rooms: RoomMetrics{
			Created: m.roomCreated.Load(),
			Removed: m.roomRemoved.Load(),
			Joined:  m.roomJoined.Load(),
			Refused: m.roomRefused.Load(),
		},
		Relay: RelayMetrics{
			Relayed:    m.relayed.Load(),
			Pings:      m.pings.Load(),
			LagDropped: m.lagDropped.Load(),
		},
	}
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	snap := m.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
