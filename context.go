package gputrc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gputrc/gputrc/internal/gpudebug"
)

const (
	// DefaultCapacity is the default number of markers per context. It bounds
	// the number of outstanding timestamp queries before collection is
	// required. Some room below the page-multiple is left for the context's
	// own bookkeeping.
	DefaultCapacity = 16*1024 - 256

	// MaxCapacity is the largest permitted pool, constrained by the uint16
	// query ID space.
	MaxCapacity = 65536
)

// ErrPoolExhausted is returned by insert-query operations when every marker
// in the pool is attached to an open or outstanding chain. It is the
// documented capacity-exhaustion policy: the caller should treat it as "skip
// this zone", and a later [Context.Collect] plus [Context.FreeChain] will
// replenish the pool. The zone wrappers do exactly that.
var ErrPoolExhausted = errors.New("gputrc: timestamp query pool exhausted")

// Config collects the parameters for [New]. Driver and Stream are required;
// everything else has a useful default.
type Config struct {
	// Driver is the device API the context records timestamps through.
	Driver Driver

	// Sink receives registration, zone, and timestamp notifications.
	// Defaults to [NopSink].
	Sink Sink

	// QueueName names the device queue or stream this context instruments,
	// for sink registration.
	QueueName string

	// Kind is the device API kind reported at registration.
	Kind ContextKind

	// Stream is the device stream the calibration base marker is recorded
	// into.
	Stream Stream

	// Verbosity is the threshold above which zone operations become no-ops.
	Verbosity Verbosity

	// Capacity is the fixed marker pool size, default [DefaultCapacity],
	// max [MaxCapacity]. The pool never grows.
	Capacity int

	// Now is the host clock read during calibration. Defaults to time.Now.
	Now func() time.Time

	// Logf, if set, receives teardown-path diagnostics, e.g. event destroy
	// failures, which are logged rather than propagated.
	Logf func(format string, args ...any)
}

// Context is a device tracing context: the owner of a fixed pool of reusable
// timestamp markers, the freelist of unused markers, the FIFO queue of
// submitted event chains, and the calibration base marker. One context is
// created per device queue or stream.
//
// All mutable state is guarded by a single mutex, which serializes the public
// operations against each other. The only suspension point is the blocking
// device synchronize inside [Context.Collect], which runs while the lock is
// held: a deliberate tradeoff of collection latency for simplicity, which
// callers on latency-sensitive paths need to be aware of.
type Context struct {
	driver    Driver
	sink      Sink
	verbosity Verbosity
	id        uint8
	logf      func(string, ...any)

	mtx       sync.Mutex
	pool      []marker
	freeHead  ref
	subHead   ref
	subTail   ref
	baseEvent Event
	closed    bool
}

// New allocates a tracing context: it pre-creates every marker's device
// event, creates and records the calibration base marker, waits for it, and
// registers the context with the sink, passing the calibration anchor. If any
// creation or calibration step fails, every already-created event is
// destroyed and the error is returned; no partially-constructed context is
// ever visible to the caller.
func New(cfg Config) (*Context, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if cfg.Stream == nil {
		return nil, fmt.Errorf("stream is required")
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Capacity > MaxCapacity {
		cfg.Capacity = MaxCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}

	c := &Context{
		driver:    cfg.Driver,
		sink:      cfg.Sink,
		verbosity: cfg.Verbosity,
		logf:      cfg.Logf,
		pool:      make([]marker, cfg.Capacity),
	}

	// Pre-allocate the event pool and thread the freelist through it.
	for i := range c.pool {
		ev, err := c.driver.CreateEvent()
		if err != nil {
			c.destroyEvents()
			return nil, fmt.Errorf("create timestamp event %d/%d: %w", i+1, len(c.pool), err)
		}
		c.pool[i].event = ev
		c.pool[i].nextInChain = ref(i + 2)
	}
	c.pool[len(c.pool)-1].nextInChain = 0
	c.freeHead = 1

	base, err := c.driver.CreateEvent()
	if err != nil {
		c.destroyEvents()
		return nil, fmt.Errorf("create base event: %w", err)
	}
	c.baseEvent = base

	cal, err := calibrate(c.driver, cfg.Stream, base, cfg.Now)
	if err != nil {
		c.destroyEvents()
		return nil, err
	}

	id, err := c.sink.RegisterContext(Registration{
		Kind:        cfg.Kind,
		Name:        cfg.QueueName,
		Calibration: cal,
	})
	if err != nil {
		c.destroyEvents()
		return nil, fmt.Errorf("register tracing context: %w", err)
	}
	c.id = id

	return c, nil
}

// calibrate records the base marker into the stream, forces a synchronous
// wait for its completion, and then reads the host clock, anchoring device
// "time zero" to a specific host instant. This may drift from the actual
// differential between host and device over time, but without a dedicated
// profiling API it is the best available anchor, so the registration is
// flagged as uncalibrated.
func calibrate(d Driver, s Stream, base Event, now func() time.Time) (Calibration, error) {
	// In the absence of a synchronize, the record may not flush immediately.
	if err := d.RecordEvent(base, s); err != nil {
		return Calibration{}, fmt.Errorf("record base event: %w", err)
	}
	if err := d.Synchronize(base); err != nil {
		return Calibration{}, fmt.Errorf("synchronize base event: %w", err)
	}
	return Calibration{
		CPUTimestamp: now().UTC().UnixNano(),
		GPUTimestamp: 0,
		Period:       1.0,
		Calibrated:   false,
	}, nil
}

// ID returns the sink-assigned identifier of the context.
func (c *Context) ID() uint8 {
	return c.id
}

// Capacity returns the fixed size of the marker pool.
func (c *Context) Capacity() int {
	return len(c.pool)
}

// Close performs a final forced collection, destroys every pool event and the
// base event, and marks the context unusable. Destroy failures are logged via
// the configured Logf and otherwise ignored: teardown always completes. Close
// is idempotent, and safe to call on a nil context.
//
// Close assumes outstanding chains have drained by the time it runs. If
// device markers are still in flight, destroying their events is not
// guaranteed to be well-defined; that is an accepted shutdown assumption, not
// something Close defends against.
func (c *Context) Close() {
	if c == nil {
		return
	}

	c.Collect()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.destroyEvents()
}

// destroyEvents releases every created event, logging and ignoring individual
// failures. Used both by teardown and by the constructor's rollback path.
func (c *Context) destroyEvents() {
	for i := range c.pool {
		if c.pool[i].event == nil {
			continue
		}
		if err := c.driver.DestroyEvent(c.pool[i].event); err != nil {
			c.logf("gputrc: destroy timestamp event %d: %v", i, err)
		}
		c.pool[i].event = nil
	}
	if c.baseEvent != nil {
		if err := c.driver.DestroyEvent(c.baseEvent); err != nil {
			c.logf("gputrc: destroy base event: %v", err)
		}
		c.baseEvent = nil
	}
}

// InsertQuery pops a marker from the freelist, records its event at the
// current position of the given stream, and appends it to the chain. The
// returned query ID is the marker's pool index. If the pool is exhausted it
// returns [ErrPoolExhausted] and the chain is unchanged.
//
// A record failure from the driver is deliberately ignored: the marker is
// appended regardless, and a later collection pass will simply stop at it.
func (c *Context) InsertQuery(chain *EventChain, stream Stream, v Verbosity) (QueryID, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	r, err := c.popFree()
	if err != nil {
		return 0, err
	}

	if err := c.driver.RecordEvent(c.at(r).event, stream); err != nil {
		gpudebug.QueryCounters.RecordFailed.Add(1)
	}

	c.appendMarker(chain, r)
	gpudebug.QueryCounters.Inserted.Add(1)

	return queryID(r), nil
}

// InsertGraphQuery is [Context.InsertQuery] for graph recording: instead of
// stamping the event now, it inserts an event-record node into the
// not-yet-executed graph, ordered after the given dependencies. The returned
// node can be used as a dependency for subsequent graph operations. Pool and
// chain semantics are identical to the stream variant.
func (c *Context) InsertGraphQuery(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity) (GraphNode, QueryID, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	r, err := c.popFree()
	if err != nil {
		return nil, 0, err
	}

	node, err := c.driver.AddEventRecordNode(graph, c.at(r).event, deps)
	if err != nil {
		c.pushFree(r)
		return nil, 0, fmt.Errorf("add event record node: %w", err)
	}

	c.appendMarker(chain, r)
	gpudebug.QueryCounters.Inserted.Add(1)

	return node, queryID(r), nil
}

// popFree removes and returns the freelist head. Caller must hold the lock.
func (c *Context) popFree() (ref, error) {
	r := c.freeHead
	if r == 0 {
		return 0, ErrPoolExhausted
	}
	m := c.at(r)
	if m.state != markerFree {
		panic("gputrc: freelist contains a non-free marker")
	}
	c.freeHead = m.nextInChain
	m.nextInChain = 0
	m.state = markerRecording
	return r, nil
}

// pushFree returns a single detached marker to the freelist head. Caller must
// hold the lock.
func (c *Context) pushFree(r ref) {
	m := c.at(r)
	m.nextInChain = c.freeHead
	m.state = markerFree
	c.freeHead = r
}

// NotifySubmitted appends the chain to the tail of the submission queue,
// marking its markers eligible for collection. It touches no device state.
// No-op for an empty chain. The queue links chain heads to each other, so
// this is O(1) regardless of chain length; the state tagging walk is what
// keeps the at-most-one-attachment invariant checkable.
func (c *Context) NotifySubmitted(chain *EventChain) {
	if chain == nil {
		return
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if chain.head == 0 {
		return
	}

	for r := chain.head; r != 0; r = c.at(r).nextInChain {
		c.at(r).state = markerSubmitted
	}

	if c.subHead == 0 {
		c.subHead = chain.head
		c.subTail = chain.head
	} else {
		c.at(c.subTail).nextSubmission = chain.head
		c.subTail = chain.head
	}
}

// Collect drains the submission queue, in FIFO order. For each queued chain
// it walks the markers in order, waits for each device event, queries it, and
// reports the device-relative elapsed time against the base marker to the
// sink. If a wait or query does not indicate completion, the rest of that
// chain is left unread this pass — but the chain is still dequeued and its
// head marked submitted, so those remaining markers will never be reported.
// That matches the behavior this design is derived from; see Scenario D in
// the tests for the observable consequences.
//
// Collect blocks for as long as the device needs to retire outstanding work,
// and it holds the context lock while doing so; insert, notify, and free
// calls on other goroutines stall behind it.
func (c *Context) Collect() {
	if c == nil {
		return
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	head := c.subHead
	for head != 0 {
		for r := head; r != 0; r = c.at(r).nextInChain {
			m := c.at(r)
			if err := c.driver.Synchronize(m.event); err != nil {
				break
			}
			if err := c.driver.Query(m.event); err != nil {
				break
			}

			// An elapsed failure leaves the zero value, which the sink
			// receives as-is.
			ms, err := c.driver.Elapsed(c.baseEvent, m.event)
			if err != nil {
				ms = 0
			}
			c.sink.NotifyTimestamp(c.id, queryID(r), int64(ms*1e6))
			m.state = markerCollected
			gpudebug.QueryCounters.Collected.Add(1)
		}

		hm := c.at(head)
		next := hm.nextSubmission
		hm.wasSubmitted = true
		head = next
		c.subHead = head
	}
	c.subTail = 0
}

// FreeChain returns the chain's markers to the freelist and resets the chain
// to empty. If the chain was never reached by collection — it was recycled
// before being submitted, or before a collect ran — the sink still requires a
// value for every query that was opened, so a zero sentinel timestamp is
// reported for each marker first.
//
// FreeChain must only be called once the chain is no longer referenced by the
// submission queue, i.e. after a Collect that has dequeued it, or before it
// was ever submitted. Freeing a chain that is still queued corrupts the
// queue; the context does not defend against it.
func (c *Context) FreeChain(chain *EventChain) {
	if c == nil || chain == nil {
		return
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if chain.head == 0 {
		return
	}

	if !c.at(chain.head).wasSubmitted {
		for r := chain.head; r != 0; r = c.at(r).nextInChain {
			c.sink.NotifyTimestamp(c.id, queryID(r), 0)
			gpudebug.QueryCounters.Sentinel.Add(1)
		}
	}

	hm := c.at(chain.head)
	hm.nextSubmission = 0
	hm.wasSubmitted = false

	// Reset states before splicing, while the chain still terminates at 0.
	for r := chain.head; r != 0; r = c.at(r).nextInChain {
		c.at(r).state = markerFree
	}

	c.at(chain.tail).nextInChain = c.freeHead
	c.freeHead = chain.head

	chain.head, chain.tail = 0, 0
}
