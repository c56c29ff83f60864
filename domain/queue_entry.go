package domain

import "time"

// QueueEntry is one raw frame read from a connection, waiting for the router.
// Seq is assigned at enqueue time and defines the processing order.
type QueueEntry struct {
	Seq    uint64
	Sender string
	Raw    string
	At     time.Time
}
