// Package gputrc instruments device (GPU) command execution so that
// device-side work can be correlated with host-side trace timelines.
//
// The basic problem is that a device executes work asynchronously, on its own
// clock. To learn how long a dispatch took, the host records timestamp events
// — known as markers — into the device command stream around the work it
// cares about, and reads them back after the device has retired them.
// Markers are a strictly finite resource: a [Context] pre-allocates a fixed
// pool of them, threads them through begin/end instrumentation points as work
// is recorded, tracks which markers belong to which outstanding submission,
// and later collects completed markers and reports elapsed device time to a
// [Sink].
//
// A typical lifecycle is as follows. A context is created per device queue or
// stream, via [New]. Recording code opens and closes zones with
// [Context.StreamZoneBegin] and [Context.StreamZoneEnd] (or the graph
// variants), which draw markers from the pool and append them to a
// caller-owned [EventChain]. When the recorded work is handed to the device,
// [Context.NotifySubmitted] moves the chain into the context's submission
// queue. Some time later — from any goroutine — [Context.Collect] drains
// completed chains, computes device-relative elapsed times against the
// context's calibration anchor, and forwards them to the sink. When the unit
// of work is destroyed, [Context.FreeChain] returns its markers to the pool.
//
// Device timestamps are only meaningful relative to each other, so the
// context records a single base marker at creation time, waits for it
// synchronously, and reads the host clock: that anchors "time zero" of the
// device timeline to a specific host instant. The calibration is performed
// exactly once; long-running contexts accept bounded drift between the two
// clocks.
//
// The core consumes a [Driver], the call-level contract of the underlying
// device API, and produces into a [Sink], the consumer of zone and timestamp
// events. The [github.com/gputrc/gputrc/gputrcstore] package provides a sink
// that assembles completed zones and serves queries over them, and
// [github.com/gputrc/gputrc/gputrcweb] exposes that store over HTTP.
package gputrc
