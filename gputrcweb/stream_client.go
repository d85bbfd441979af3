package gputrcweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/gputrc/gputrc"
)

// StreamClient streams zones from a remote zone server.
type StreamClient struct {
	// HTTPClient used to make the stream request. Optional.
	HTTPClient HTTPClient

	// URI of the remote zone server. Required.
	URI string

	// SendBuffer requested of the remote server. Min 0, max 100k.
	SendBuffer int

	// OnRead is called for every server-sent event received by the client,
	// including non-zone events. Implementations must not block.
	OnRead func(ctx context.Context, eventType string, eventData []byte)

	// RetryInterval between reconnect attempts. Default 3s, min 1s, max 60s.
	RetryInterval time.Duration

	// StatsInterval for stream stats updates. Default 10s, min 1s, max 60s.
	StatsInterval time.Duration
}

// NewStreamClient returns a stream client connecting to the provided URI.
func NewStreamClient(uri string) *StreamClient {
	c := &StreamClient{
		URI: uri,
	}
	c.initialize()
	return c
}

func (c *StreamClient) initialize() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	if c.URI != "" && !strings.HasPrefix(c.URI, "http") {
		c.URI = "http://" + c.URI
	}

	if min, max := 0, 100000; c.SendBuffer < min {
		c.SendBuffer = min
	} else if c.SendBuffer > max {
		c.SendBuffer = max
	}

	if c.OnRead == nil {
		c.OnRead = func(ctx context.Context, eventType string, eventData []byte) {}
	}

	if def, min, max := 3*time.Second, 1*time.Second, 60*time.Second; c.RetryInterval == 0 {
		c.RetryInterval = def
	} else if c.RetryInterval < min {
		c.RetryInterval = min
	} else if c.RetryInterval > max {
		c.RetryInterval = max
	}

	if def, min, max := 10*time.Second, 1*time.Second, 60*time.Second; c.StatsInterval == 0 {
		c.StatsInterval = def
	} else if c.StatsInterval < min {
		c.StatsInterval = min
	} else if c.StatsInterval > max {
		c.StatsInterval = max
	}
}

// Stream zones from the remote server, filtered by the provided filter, to
// the provided channel. The stream stops when the context is canceled or a
// non-recoverable error occurs.
func (c *StreamClient) Stream(ctx context.Context, f gputrc.Filter, ch chan<- gputrc.Zone) error {
	c.initialize()

	// Explicitly don't bind the request to the context: EventSource treats
	// context cancelation as a recoverable error, and can block for a full
	// retry interval before returning. EventSource also re-uses the request
	// across reconnects, which rules out a body, so the filter is encoded in
	// the URL.
	var req *http.Request
	{
		uri, err := url.Parse(c.URI)
		if err != nil {
			return err
		}

		query := uri.Query()
		if c.SendBuffer > 0 {
			query.Set("sendbuf", strconv.Itoa(c.SendBuffer))
		}
		if c.StatsInterval > 0 {
			query.Set("stats", c.StatsInterval.String())
		}
		encodeFilter(f, query)
		uri.RawQuery = query.Encode()

		r, err := http.NewRequest("GET", uri.String(), nil)
		if err != nil {
			return err
		}

		req = r
	}

	es := eventsource.New(req, c.RetryInterval)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		ev, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		c.OnRead(ctx, ev.Type, ev.Data)

		if ev.Type != "zone" {
			continue
		}

		var z gputrc.Zone
		if err := json.Unmarshal(ev.Data, &z); err != nil {
			continue
		}

		select {
		case ch <- z:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// encodeFilter writes the filter into URL query values, matching what
// parseFilter reads.
func encodeFilter(f gputrc.Filter, query url.Values) {
	for _, name := range f.Contexts {
		query.Add("context", name)
	}
	if f.MinDuration != nil {
		query.Set("min", f.MinDuration.String())
	}
	if f.IsSentinel {
		query.Set("sentinel", "true")
	}
	if f.IsMeasured {
		query.Set("measured", "true")
	}
	if f.Query != "" {
		query.Set("q", f.Query)
	}
}
