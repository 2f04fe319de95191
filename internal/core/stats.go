package core

import "sync/atomic"

// Stats holds the server's monotonically increasing counters. They are
// written from peer pumps and read by the status endpoint, so every
// field is atomic.
type Stats struct {
	Connections  atomic.Uint64
	Messages     atomic.Uint64
	BytesIn      atomic.Uint64
	BytesOut     atomic.Uint64
	RoomsCreated atomic.Uint64
}

// StatsSnapshot is the read-only view served over the status API.
type StatsSnapshot struct {
	Connections  uint64 `json:"connections"`
	Messages     uint64 `json:"messages"`
	BytesIn      uint64 `json:"bytes_in"`
	BytesOut     uint64 `json:"bytes_out"`
	RoomsCreated uint64 `json:"rooms_created"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Connections:  s.Connections.Load(),
		Messages:     s.Messages.Load(),
		BytesIn:      s.BytesIn.Load(),
		BytesOut:     s.BytesOut.Load(),
		RoomsCreated: s.RoomsCreated.Load(),
	}
}
