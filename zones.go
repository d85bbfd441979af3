package gputrc

import "github.com/gputrc/gputrc/internal/gpudebug"

// Zone wrappers compose insert-query with the corresponding sink
// notifications. Each is a no-op, consuming no marker, when the requested
// verbosity exceeds the context's configured verbosity. On pool exhaustion
// they report nothing to the sink, count the dropped zone, and return
// [ErrPoolExhausted], which callers should treat as "skip this zone".
//
// TODO: each zone costs two markers, one for begin and one for end. In many
// cases adjacent zones could share a marker by recording only between zones
// and differencing.

// StreamZoneBegin opens a device zone on the given stream.
func (c *Context) StreamZoneBegin(chain *EventChain, stream Stream, v Verbosity, loc SourceLocation) error {
	if v > c.verbosity {
		return nil
	}
	qid, err := c.InsertQuery(chain, stream, v)
	if err != nil {
		gpudebug.ZoneCounters.Dropped.Add(1)
		return err
	}
	c.sink.ZoneBegin(c.id, qid, loc)
	gpudebug.ZoneCounters.Opened.Add(1)
	return nil
}

// StreamZoneBeginExternal is StreamZoneBegin for location payloads
// constructed at runtime.
func (c *Context) StreamZoneBeginExternal(chain *EventChain, stream Stream, v Verbosity, loc SourceLocation) error {
	if v > c.verbosity {
		return nil
	}
	qid, err := c.InsertQuery(chain, stream, v)
	if err != nil {
		gpudebug.ZoneCounters.Dropped.Add(1)
		return err
	}
	c.sink.ZoneBeginExternal(c.id, qid, loc)
	gpudebug.ZoneCounters.Opened.Add(1)
	return nil
}

// StreamZoneEnd closes the most recently opened device zone on the stream.
func (c *Context) StreamZoneEnd(chain *EventChain, stream Stream, v Verbosity) error {
	if v > c.verbosity {
		return nil
	}
	qid, err := c.InsertQuery(chain, stream, v)
	if err != nil {
		gpudebug.ZoneCounters.Dropped.Add(1)
		return err
	}
	c.sink.ZoneEnd(c.id, qid)
	gpudebug.ZoneCounters.Closed.Add(1)
	return nil
}

// GraphZoneBeginExternal opens a device zone as an event-record node in the
// graph, ordered after deps. The returned node should be a dependency of the
// zone's workload nodes.
func (c *Context) GraphZoneBeginExternal(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity, loc SourceLocation) (GraphNode, error) {
	if v > c.verbosity {
		return nil, nil
	}
	node, qid, err := c.InsertGraphQuery(chain, graph, deps, v)
	if err != nil {
		gpudebug.ZoneCounters.Dropped.Add(1)
		return nil, err
	}
	c.sink.ZoneBeginExternal(c.id, qid, loc)
	gpudebug.ZoneCounters.Opened.Add(1)
	return node, nil
}

// GraphZoneEnd closes the most recently opened graph zone, ordered after
// deps, which should include the zone's workload nodes.
func (c *Context) GraphZoneEnd(chain *EventChain, graph Graph, deps []GraphNode, v Verbosity) (GraphNode, error) {
	if v > c.verbosity {
		return nil, nil
	}
	node, qid, err := c.InsertGraphQuery(chain, graph, deps, v)
	if err != nil {
		gpudebug.ZoneCounters.Dropped.Add(1)
		return nil, err
	}
	c.sink.ZoneEnd(c.id, qid)
	gpudebug.ZoneCounters.Closed.Add(1)
	return node, nil
}
