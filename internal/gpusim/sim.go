// Package gpusim simulates a timestamp-capable device, deterministically
// enough for tests and demos to drive every path of the tracing context:
// normal collection, partial completion, creation failure rollback, and
// teardown.
package gpusim

import (
	"fmt"
	"sync"
	"time"

	"github.com/gputrc/gputrc"
)

// DeviceConfig collects the parameters for [NewDevice].
type DeviceConfig struct {
	// Step is how far the device clock advances per recorded event.
	// Default 1µs.
	Step time.Duration

	// FailCreateAt, when > 0, makes the n-th CreateEvent call fail. Used to
	// exercise constructor rollback.
	FailCreateAt int
}

// Device implements [gputrc.Driver] over a virtual device clock. Recording
// an event stamps it with the current clock and advances the clock by the
// configured step, so recorded timestamps are strictly increasing in record
// order. Events complete immediately unless their record sequence has been
// marked pending via [Device.SetPending].
type Device struct {
	mtx          sync.Mutex
	step         time.Duration
	clock        int64 // virtual device ns
	seq          int   // record sequence, starts at 1
	pending      map[int]bool
	created      int
	destroyed    int
	failCreateAt int
}

var _ gputrc.Driver = (*Device)(nil)

// NewDevice returns a device with a zeroed clock.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Step <= 0 {
		cfg.Step = time.Microsecond
	}
	return &Device{
		step:         cfg.Step,
		pending:      map[int]bool{},
		failCreateAt: cfg.FailCreateAt,
	}
}

// Event is the device's timestamp event object.
type Event struct {
	dev       *Device
	seq       int // record sequence, 0 until recorded
	stamp     int64
	destroyed bool
}

// Stream is a device command stream. The simulation shares one clock across
// all streams, so streams exist only to satisfy the recording interfaces and
// to carry a name.
type Stream struct {
	Name string
}

// NewStream returns a stream with the given name.
func (d *Device) NewStream(name string) *Stream {
	return &Stream{Name: name}
}

// CreateEvent implements gputrc.Driver.
func (d *Device) CreateEvent() (gputrc.Event, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.created++
	if d.failCreateAt > 0 && d.created == d.failCreateAt {
		return nil, fmt.Errorf("simulated create failure at event %d", d.created)
	}

	return &Event{dev: d}, nil
}

// DestroyEvent implements gputrc.Driver.
func (d *Device) DestroyEvent(ev gputrc.Event) error {
	sev, err := d.event(ev)
	if err != nil {
		return err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if sev.destroyed {
		return fmt.Errorf("event destroyed twice")
	}
	sev.destroyed = true
	d.destroyed++

	return nil
}

// RecordEvent implements gputrc.Driver, stamping the event with the device
// clock and advancing the clock.
func (d *Device) RecordEvent(ev gputrc.Event, stream gputrc.Stream) error {
	sev, err := d.event(ev)
	if err != nil {
		return err
	}
	if _, ok := stream.(*Stream); !ok {
		return fmt.Errorf("invalid stream handle %T", stream)
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.record(sev)

	return nil
}

// record stamps the event. Caller must hold the device lock.
func (d *Device) record(sev *Event) {
	d.seq++
	d.clock += int64(d.step)
	sev.seq = d.seq
	sev.stamp = d.clock
}

// Synchronize implements gputrc.Driver. The simulation does not block: a
// pending event reports [gputrc.ErrNotReady] instead, which the collector
// treats the same as a failed device wait.
func (d *Device) Synchronize(ev gputrc.Event) error {
	return d.Query(ev)
}

// Query implements gputrc.Driver.
func (d *Device) Query(ev gputrc.Event) error {
	sev, err := d.event(ev)
	if err != nil {
		return err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if sev.seq == 0 {
		return fmt.Errorf("event never recorded")
	}
	if d.pending[sev.seq] {
		return gputrc.ErrNotReady
	}

	return nil
}

// Elapsed implements gputrc.Driver, returning milliseconds.
func (d *Device) Elapsed(from, to gputrc.Event) (float64, error) {
	sfrom, err := d.event(from)
	if err != nil {
		return 0, err
	}
	sto, err := d.event(to)
	if err != nil {
		return 0, err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if sfrom.seq == 0 || sto.seq == 0 {
		return 0, fmt.Errorf("elapsed between unrecorded events")
	}

	return float64(sto.stamp-sfrom.stamp) / 1e6, nil
}

func (d *Device) event(ev gputrc.Event) (*Event, error) {
	sev, ok := ev.(*Event)
	if !ok || sev.dev != d {
		return nil, fmt.Errorf("invalid event handle %T", ev)
	}
	return sev, nil
}

//
//
//

// SetPending marks events by record sequence as not yet completed by the
// device. Sequences count from 1 in record order; note the context records
// its calibration base marker first. Pending events fail Synchronize and
// Query until [Device.ClearPending].
func (d *Device) SetPending(seqs ...int) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	for _, seq := range seqs {
		d.pending[seq] = true
	}
}

// ClearPending completes all pending events.
func (d *Device) ClearPending() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.pending = map[int]bool{}
}

// Advance moves the device clock forward, e.g. to simulate dispatch work
// between recorded timestamps.
func (d *Device) Advance(delta time.Duration) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.clock += int64(delta)
}

// Counts reports how many events have been created and destroyed.
func (d *Device) Counts() (created, destroyed int) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.created, d.destroyed
}

// RecordCount reports how many events have been recorded.
func (d *Device) RecordCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.seq
}

//
//
//

// Graph is a device command graph: recording into it is deferred until the
// graph is launched.
type Graph struct {
	dev   *Device
	nodes []*Node
}

// Node is a graph node created by AddEventRecordNode.
type Node struct {
	event *Event
	deps  []gputrc.GraphNode
}

// NewGraph returns an empty graph.
func (d *Device) NewGraph() *Graph {
	return &Graph{dev: d}
}

// AddEventRecordNode implements gputrc.Driver.
func (d *Device) AddEventRecordNode(graph gputrc.Graph, ev gputrc.Event, deps []gputrc.GraphNode) (gputrc.GraphNode, error) {
	g, ok := graph.(*Graph)
	if !ok || g.dev != d {
		return nil, fmt.Errorf("invalid graph handle %T", graph)
	}
	sev, err := d.event(ev)
	if err != nil {
		return nil, err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	node := &Node{event: sev, deps: deps}
	g.nodes = append(g.nodes, node)

	return node, nil
}

// Launch executes the graph on the stream, stamping every event-record node
// in insertion order, which respects the dependency edges the tracing
// context constructs.
func (d *Device) Launch(g *Graph, stream *Stream) error {
	if g.dev != d {
		return fmt.Errorf("graph belongs to a different device")
	}
	_ = stream

	d.mtx.Lock()
	defer d.mtx.Unlock()

	for _, node := range g.nodes {
		d.record(node.event)
	}

	return nil
}
