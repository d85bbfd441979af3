package gputrc

import "errors"

// Event is an opaque device timestamp event handle, created by a [Driver] and
// meaningful only to the driver that produced it.
type Event interface{}

// Stream is an opaque device command stream handle.
type Stream interface{}

// Graph is an opaque device command graph handle, for drivers that support
// recording work into a not-yet-executed graph.
type Graph interface{}

// GraphNode is an opaque node in a [Graph], used to express dependency edges
// between graph operations.
type GraphNode interface{}

// ErrNotReady is returned by [Driver.Query] when the event has been recorded
// but the device has not yet completed it.
var ErrNotReady = errors.New("gputrc: event not ready")

// Driver is the call-level contract the tracing context consumes from the
// underlying device API. Any call may fail with a driver-specific error;
// whether a failure is fatal depends on the call site. Event creation
// failures abort context construction, destroy failures during teardown are
// logged and ignored, and synchronize/query failures during collection simply
// defer that marker to a later collection pass.
//
// Implementations must be safe for concurrent use.
type Driver interface {
	// CreateEvent allocates a device timestamp event object.
	CreateEvent() (Event, error)

	// DestroyEvent releases a device timestamp event object. Destroying an
	// event that the device may still write to is not well-defined; callers
	// are expected to have drained outstanding work first.
	DestroyEvent(ev Event) error

	// RecordEvent enqueues a timestamp capture of ev at the current position
	// of the given stream.
	RecordEvent(ev Event, stream Stream) error

	// AddEventRecordNode inserts a timestamp capture of ev as a node in the
	// given graph, ordered after the provided dependency nodes. The returned
	// node can be used as a dependency for subsequent graph operations.
	AddEventRecordNode(graph Graph, ev Event, deps []GraphNode) (GraphNode, error)

	// Synchronize blocks the calling goroutine until the device has completed
	// the event. A hung device stalls the caller indefinitely; there are no
	// timeout semantics.
	Synchronize(ev Event) error

	// Query reports event completion without blocking. It returns nil if the
	// event has completed, [ErrNotReady] if it is still pending, and any
	// other error for driver failures.
	Query(ev Event) error

	// Elapsed returns the device time elapsed between two completed events,
	// in milliseconds.
	Elapsed(from, to Event) (float64, error)
}
