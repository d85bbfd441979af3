package gputrc

// Markers are kept in a fixed arena owned by the context, and referenced only
// by index, never by address. A ref is a 1-based index into the arena, so
// that the zero value means "none" and a zero EventChain is usably empty.
type ref uint32

// markerState tags which single structure a marker is currently reachable
// from. State transitions are free → recording → submitted → collected → free,
// with collected → free also reachable directly for chains recycled before
// collection ever observed them.
type markerState uint8

const (
	markerFree markerState = iota
	markerRecording
	markerSubmitted
	markerCollected
)

// marker is one arena slot: a device event handle plus the links that thread
// it through the freelist, its owning chain, and the submission queue.
type marker struct {
	// event is the device timestamp object, created at context construction
	// and destroyed at teardown.
	event Event

	// nextInChain links markers within one event chain. While the marker is
	// free it links the freelist instead; the state tag says which.
	nextInChain ref

	// nextSubmission links chain heads to each other within the submission
	// queue. Only ever non-zero on a head.
	nextSubmission ref

	// wasSubmitted is set on a chain's head when collection has dequeued the
	// chain, and tells the recycle path whether the sink has already been
	// given timestamps for these queries.
	wasSubmitted bool

	state markerState
}

// EventChain is the ordered sequence of markers belonging to one
// caller-defined unit of recorded device work, typically a command buffer.
// The zero value is an empty chain, ready for use.
//
// A chain is built up by insert-query operations, handed to the context's
// submission queue by [Context.NotifySubmitted], and returned to the marker
// pool by [Context.FreeChain], which resets it to empty. Chains are owned by
// their caller and are not safe for concurrent use; the context's own
// bookkeeping is what the context lock protects.
type EventChain struct {
	head, tail ref
}

// Empty reports whether the chain holds no markers.
func (ch *EventChain) Empty() bool {
	return ch.head == 0
}

// at resolves a ref into the context's marker arena.
func (c *Context) at(r ref) *marker {
	return &c.pool[r-1]
}

// queryID returns the externally visible query ID of a marker, which is its
// 0-based arena index.
func queryID(r ref) QueryID {
	return QueryID(r - 1)
}

// appendMarker puts the marker at the tail of the chain. Caller must hold the
// context lock.
func (c *Context) appendMarker(ch *EventChain, r ref) {
	if ch.head == 0 {
		ch.head = r
		ch.tail = r
	} else {
		c.at(ch.tail).nextInChain = r
		ch.tail = r
	}
}
