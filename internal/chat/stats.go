package chat

import "sync/atomic"

// Stats is a point-in-time copy of the server counters.
type Stats struct {
	Accepted         uint64
	Active           int64
	MessagesReceived uint64
	Delivered        uint64
	FailedDeliveries uint64
	// DroppedEvents counts notifications a full subscriber did not receive.
	DroppedEvents uint64
}

type counters struct {
	accepted  atomic.Uint64
	active    atomic.Int64
	received  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func (c *counters) addConnection() {
	c.accepted.Add(1)
	c.active.Add(1)
}

func (c *counters) removeConnection() {
	c.active.Add(-1)
}

func (c *counters) snapshot() Stats {
	return Stats{
		Accepted:         c.accepted.Load(),
		Active:           c.active.Load(),
		MessagesReceived: c.received.Load(),
		Delivered:        c.delivered.Load(),
		FailedDeliveries: c.failed.Load(),
	}
}
