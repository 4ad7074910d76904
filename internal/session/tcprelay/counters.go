package tcprelay

import "sync/atomic"

// Counters tracks the byte/stream totals of §4.8, updated atomically from
// the per-stream pump goroutines and read by a surrounding UI or admin
// surface without synchronizing with the relay session itself.
type Counters struct {
	bytesUp       int64
	bytesDown     int64
	activeStreams int64
}

func (c *Counters) addUp(n int64)   { atomic.AddInt64(&c.bytesUp, n) }
func (c *Counters) addDown(n int64) { atomic.AddInt64(&c.bytesDown, n) }
func (c *Counters) streamOpened()   { atomic.AddInt64(&c.activeStreams, 1) }
func (c *Counters) streamClosed()   { atomic.AddInt64(&c.activeStreams, -1) }

// Snapshot is a point-in-time read of Counters.
type Snapshot struct {
	BytesUp       int64
	BytesDown     int64
	ActiveStreams int64
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesUp:       atomic.LoadInt64(&c.bytesUp),
		BytesDown:     atomic.LoadInt64(&c.bytesDown),
		ActiveStreams: atomic.LoadInt64(&c.activeStreams),
	}
}
