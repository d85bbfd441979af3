package gputrc

// Tracer is the complete public surface of a tracing context. It exists so
// that instrumentation call sites don't need to know whether device tracing
// is enabled: [NewTracer] selects between a real [*Context] and a no-op
// implementation at configuration time.
type Tracer interface {
	// InsertQuery allocates a marker, records it into the stream, and
	// appends it to the chain.
	InsertQuery(chain *EventChain, stream Stream, v Verbosity) (QueryID, error)

	// InsertGraphQuery allocates a marker and inserts its event-record node
	// into the graph.
	InsertGraphQuery(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity) (GraphNode, QueryID, error)

	// NotifySubmitted marks the chain's markers eligible for collection.
	NotifySubmitted(chain *EventChain)

	// Collect drains completed chains and reports timestamps to the sink.
	Collect()

	// FreeChain returns the chain's markers to the pool.
	FreeChain(chain *EventChain)

	// Zone wrappers; see the [Context] methods of the same names.
	StreamZoneBegin(chain *EventChain, stream Stream, v Verbosity, loc SourceLocation) error
	StreamZoneBeginExternal(chain *EventChain, stream Stream, v Verbosity, loc SourceLocation) error
	StreamZoneEnd(chain *EventChain, stream Stream, v Verbosity) error
	GraphZoneBeginExternal(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity, loc SourceLocation) (GraphNode, error)
	GraphZoneEnd(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity) (GraphNode, error)

	// Close tears the tracer down. Idempotent.
	Close()
}

var (
	_ Tracer = (*Context)(nil)
	_ Tracer = disabled{}
)

// NewTracer returns a [Tracer] for the config: a real context, or, when
// disabled is true, a no-op implementation that consumes no device resources
// and never touches the sink.
func NewTracer(cfg Config, disable bool) (Tracer, error) {
	if disable {
		return Disabled(), nil
	}
	return New(cfg)
}

// Disabled returns the no-op Tracer.
func Disabled() Tracer {
	return disabled{}
}

// disabled is the capability-null tracing context: every operation trivially
// succeeds and has no effect.
type disabled struct{}

func (disabled) InsertQuery(*EventChain, Stream, Verbosity) (QueryID, error) {
	return 0, nil
}

func (disabled) InsertGraphQuery(*EventChain, Graph, []GraphNode, Verbosity) (GraphNode, QueryID, error) {
	return nil, 0, nil
}

func (disabled) NotifySubmitted(*EventChain) {}

func (disabled) Collect() {}

func (disabled) FreeChain(*EventChain) {}

func (disabled) StreamZoneBegin(*EventChain, Stream, Verbosity, SourceLocation) error {
	return nil
}

func (disabled) StreamZoneBeginExternal(*EventChain, Stream, Verbosity, SourceLocation) error {
	return nil
}

func (disabled) StreamZoneEnd(*EventChain, Stream, Verbosity) error {
	return nil
}

func (disabled) GraphZoneBeginExternal(*EventChain, Graph, []GraphNode, Verbosity, SourceLocation) (GraphNode, error) {
	return nil, nil
}

func (disabled) GraphZoneEnd(*EventChain, Graph, []GraphNode, Verbosity) (GraphNode, error) {
	return nil, nil
}

func (disabled) Close() {}
