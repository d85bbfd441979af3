// Package gputrcstream provides publish/subscribe semantics for completed
// zones, so that live consumers — the SSE stream server, the CLI — can
// observe device zones as they are collected.
package gputrcstream

import (
	"context"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/internal/gpupubsub"
)

// Broker fans completed zones out to subscribers. Publishing never blocks:
// slow subscribers drop zones, and the drops are counted.
type Broker struct {
	broker *gpupubsub.Broker[gputrc.Zone]
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{
		broker: gpupubsub.NewBroker[gputrc.Zone](),
	}
}

// Streamer describes the broker for consumers like the stream server.
type Streamer interface {
	Stream(ctx context.Context, f gputrc.Filter, ch chan<- gputrc.Zone) (Stats, error)
	StreamStats(ctx context.Context, ch chan<- gputrc.Zone) (Stats, error)
}

var _ Streamer = (*Broker)(nil)

// Stats for active subscriptions.
type Stats = gpupubsub.Stats

// Publish the zone to any active subscribers. Satisfies
// [github.com/gputrc/gputrc/gputrcstore.Publisher].
func (b *Broker) Publish(z gputrc.Zone) {
	b.broker.Publish(z)
}

// IsActive reports whether anyone is subscribed.
func (b *Broker) IsActive() bool {
	return b.broker.IsActive()
}

// Stream zones matching the filter to the provided channel. The method
// blocks until ctx is canceled.
func (b *Broker) Stream(ctx context.Context, f gputrc.Filter, ch chan<- gputrc.Zone) (Stats, error) {
	f.Normalize()
	return b.broker.Subscribe(ctx, f.Allow, ch)
}

// StreamStats for the active stream represented by the given channel.
func (b *Broker) StreamStats(ctx context.Context, ch chan<- gputrc.Zone) (Stats, error) {
	return b.broker.Stats(ctx, ch)
}
