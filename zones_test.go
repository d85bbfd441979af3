package gputrc_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/internal/gpusim"
)

func TestStreamZones(t *testing.T) {
	t.Parallel()

	var (
		device = gpusim.NewDevice(gpusim.DeviceConfig{})
		sink   = &recorderSink{}
		stream = device.NewStream("queue-0")
	)

	c, err := gputrc.New(gputrc.Config{
		Driver:    device,
		Sink:      sink,
		QueueName: "queue-0",
		Stream:    stream,
		Verbosity: gputrc.VerbosityCoarse,
		Capacity:  4,
	})
	AssertNoError(t, err)
	t.Cleanup(c.Close)

	loc := gputrc.SourceLocation{Name: "matmul", Function: "DispatchMatmul", File: "matmul.cu", Line: 41}

	var chain gputrc.EventChain

	// Above the configured verbosity: a no-op, consuming nothing.
	AssertNoError(t, c.StreamZoneBegin(&chain, stream, gputrc.VerbosityFine, loc))
	AssertEqual(t, true, chain.Empty())
	AssertEqual(t, 0, len(sink.Calls("")))

	// At the configured verbosity: a begin/end pair costs two markers.
	AssertNoError(t, c.StreamZoneBegin(&chain, stream, gputrc.VerbosityCoarse, loc))
	device.Advance(100 * time.Microsecond)
	AssertNoError(t, c.StreamZoneEnd(&chain, stream, gputrc.VerbosityCoarse))

	begins := sink.Calls("begin")
	AssertEqual(t, 1, len(begins))
	AssertEqual(t, loc, begins[0].Loc)
	AssertEqual(t, gputrc.QueryID(0), begins[0].QueryID)

	ends := sink.Calls("end")
	AssertEqual(t, 1, len(ends))
	AssertEqual(t, gputrc.QueryID(1), ends[0].QueryID)

	AssertNoError(t, c.StreamZoneBeginExternal(&chain, stream, gputrc.VerbosityCoarse, loc))
	AssertNoError(t, c.StreamZoneEnd(&chain, stream, gputrc.VerbosityCoarse))
	AssertEqual(t, 1, len(sink.Calls("begin-external")))

	c.NotifySubmitted(&chain)
	c.Collect()
	c.FreeChain(&chain)
	AssertEqual(t, 4, len(sink.Calls("timestamp")))
}

func TestZoneExhaustionDropsZone(t *testing.T) {
	t.Parallel()

	var (
		device = gpusim.NewDevice(gpusim.DeviceConfig{})
		sink   = &recorderSink{}
		stream = device.NewStream("queue-0")
	)

	c, err := gputrc.New(gputrc.Config{
		Driver:    device,
		Sink:      sink,
		Stream:    stream,
		Verbosity: gputrc.VerbosityVerbose,
		Capacity:  1,
	})
	AssertNoError(t, err)
	t.Cleanup(c.Close)

	var chain gputrc.EventChain
	loc := gputrc.SourceLocation{Name: "softmax"}
	AssertNoError(t, c.StreamZoneBegin(&chain, stream, gputrc.VerbosityFine, loc))

	// Pool exhausted: the end zone is dropped, and nothing reaches the sink.
	err = c.StreamZoneEnd(&chain, stream, gputrc.VerbosityFine)
	AssertEqual(t, true, errors.Is(err, gputrc.ErrPoolExhausted))
	AssertEqual(t, 0, len(sink.Calls("end")))
}

func TestGraphZones(t *testing.T) {
	t.Parallel()

	var (
		device = gpusim.NewDevice(gpusim.DeviceConfig{})
		sink   = &recorderSink{}
		stream = device.NewStream("queue-0")
	)

	c, err := gputrc.New(gputrc.Config{
		Driver:    device,
		Sink:      sink,
		Stream:    stream,
		Verbosity: gputrc.VerbosityVerbose,
		Capacity:  4,
	})
	AssertNoError(t, err)
	t.Cleanup(c.Close)

	var (
		chain gputrc.EventChain
		graph = device.NewGraph()
		loc   = gputrc.SourceLocation{Name: "graph-dispatch"}
	)

	begin, err := c.GraphZoneBeginExternal(&chain, graph, nil, gputrc.VerbosityFine, loc)
	AssertNoError(t, err)
	if begin == nil {
		t.Fatal("no begin node")
	}

	end, err := c.GraphZoneEnd(&chain, graph, []gputrc.GraphNode{begin}, gputrc.VerbosityFine)
	AssertNoError(t, err)
	if end == nil {
		t.Fatal("no end node")
	}

	// Nothing is recorded until the graph launches.
	c.NotifySubmitted(&chain)
	recordedBefore := device.RecordCount()

	AssertNoError(t, device.Launch(graph, stream))
	AssertEqual(t, recordedBefore+2, device.RecordCount())

	c.Collect()
	c.FreeChain(&chain)

	timestamps := sink.Calls("timestamp")
	AssertEqual(t, 2, len(timestamps))
	if timestamps[0].Timestamp >= timestamps[1].Timestamp {
		t.Errorf("graph zone timestamps out of order: %d, %d", timestamps[0].Timestamp, timestamps[1].Timestamp)
	}
}

func TestGraphNodeFailureReturnsMarker(t *testing.T) {
	t.Parallel()

	var (
		device = gpusim.NewDevice(gpusim.DeviceConfig{})
		sink   = &recorderSink{}
		stream = device.NewStream("queue-0")
	)

	c, err := gputrc.New(gputrc.Config{
		Driver:    device,
		Sink:      sink,
		Stream:    stream,
		Verbosity: gputrc.VerbosityVerbose,
		Capacity:  2,
	})
	AssertNoError(t, err)
	t.Cleanup(c.Close)

	// An invalid graph handle fails node insertion; the popped marker must
	// return to the freelist rather than leak.
	var chain gputrc.EventChain
	_, _, err = c.InsertGraphQuery(&chain, struct{}{}, nil, gputrc.VerbosityFine)
	if err == nil {
		t.Fatal("expected error")
	}
	AssertEqual(t, true, chain.Empty())

	for i := 0; i < 2; i++ {
		_, err := c.InsertQuery(&chain, stream, gputrc.VerbosityFine)
		AssertNoError(t, err)
	}
}

func TestDisabledTracer(t *testing.T) {
	t.Parallel()

	device := gpusim.NewDevice(gpusim.DeviceConfig{})

	tracer, err := gputrc.NewTracer(gputrc.Config{Driver: device, Stream: device.NewStream("q")}, true)
	AssertNoError(t, err)

	// The disabled tracer consumes no device resources at all.
	created, _ := device.Counts()
	AssertEqual(t, 0, created)

	var chain gputrc.EventChain
	qid, err := tracer.InsertQuery(&chain, device.NewStream("q"), gputrc.VerbosityFine)
	AssertNoError(t, err)
	AssertEqual(t, gputrc.QueryID(0), qid)
	AssertEqual(t, true, chain.Empty())

	AssertNoError(t, tracer.StreamZoneBegin(&chain, nil, gputrc.VerbosityFine, gputrc.SourceLocation{}))
	AssertNoError(t, tracer.StreamZoneEnd(&chain, nil, gputrc.VerbosityFine))

	tracer.NotifySubmitted(&chain)
	tracer.Collect()
	tracer.FreeChain(&chain)
	tracer.Close()
	tracer.Close()

	AssertEqual(t, 0, device.RecordCount())
}
