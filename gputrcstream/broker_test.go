package gputrcstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstream"
)

func waitActive(t *testing.T, b *gputrcstream.Broker) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !b.IsActive() {
		if time.Now().After(deadline) {
			t.Fatal("broker never became active")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBrokerStream(t *testing.T) {
	t.Parallel()

	var (
		broker      = gputrcstream.NewBroker()
		ctx, cancel = context.WithCancel(context.Background())
		zonec       = make(chan gputrc.Zone, 10)
		statsc      = make(chan gputrcstream.Stats, 1)
	)

	go func() {
		stats, _ := broker.Stream(ctx, gputrc.Filter{Contexts: []string{"queue-0"}}, zonec)
		statsc <- stats
	}()

	waitActive(t, broker)

	broker.Publish(gputrc.Zone{ContextName: "queue-0", Name: "matmul"})
	broker.Publish(gputrc.Zone{ContextName: "queue-1", Name: "conv2d"}) // filtered out
	broker.Publish(gputrc.Zone{ContextName: "queue-0", Name: "softmax"})

	z := <-zonec
	if want, have := "matmul", z.Name; want != have {
		t.Errorf("zone name: want %q, have %q", want, have)
	}
	z = <-zonec
	if want, have := "softmax", z.Name; want != have {
		t.Errorf("zone name: want %q, have %q", want, have)
	}

	mid, err := broker.StreamStats(ctx, zonec)
	if err != nil {
		t.Fatalf("stream stats: %v", err)
	}
	if want, have := uint64(2), mid.Sends; want != have {
		t.Errorf("sends: want %d, have %d", want, have)
	}
	if want, have := uint64(1), mid.Skips; want != have {
		t.Errorf("skips: want %d, have %d", want, have)
	}

	cancel()

	final := <-statsc
	if want, have := uint64(2), final.Sends; want != have {
		t.Errorf("final sends: want %d, have %d", want, have)
	}

	if broker.IsActive() {
		t.Error("broker still active after unsubscribe")
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	t.Parallel()

	var (
		broker      = gputrcstream.NewBroker()
		ctx, cancel = context.WithCancel(context.Background())
		zonec       = make(chan gputrc.Zone, 1)
		statsc      = make(chan gputrcstream.Stats, 1)
	)

	go func() {
		stats, _ := broker.Stream(ctx, gputrc.Filter{}, zonec)
		statsc <- stats
	}()

	waitActive(t, broker)

	// The channel holds one zone; publishing never blocks, so the rest drop.
	for i := 0; i < 5; i++ {
		broker.Publish(gputrc.Zone{Name: "z"})
	}

	cancel()

	stats := <-statsc
	if want, have := uint64(1), stats.Sends; want != have {
		t.Errorf("sends: want %d, have %d", want, have)
	}
	if want, have := uint64(4), stats.Drops; want != have {
		t.Errorf("drops: want %d, have %d", want, have)
	}
}

func TestBrokerPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	broker := gputrcstream.NewBroker()
	broker.Publish(gputrc.Zone{Name: "nobody listening"}) // must not block or panic
	if broker.IsActive() {
		t.Error("broker unexpectedly active")
	}
}
