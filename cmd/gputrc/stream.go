package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstream"
	"github.com/gputrc/gputrc/gputrcweb"
	"github.com/gputrc/gputrc/internal/gpuutil"
)

type streamConfig struct {
	*rootConfig

	uri           string
	output        string
	sendBuf       int
	recvBuf       int
	statsInterval time.Duration
	retryInterval time.Duration

	zones chan gputrc.Zone
}

func (cfg *streamConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*            */, Value: ffval.NewValue(&cfg.uri) /*                                  */, Usage: "zone server URI (required)", Placeholder: "URI"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'o', LongName: "output" /*         */, Value: ffval.NewEnum(&cfg.output, "text", "ndjson") /*              */, Usage: "output format: text, ndjson"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "send-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.sendBuf, 100) /*                  */, Usage: "remote send buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "recv-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.recvBuf, 100) /*                  */, Usage: "local receive buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stats-interval" /* */, Value: ffval.NewValueDefault(&cfg.statsInterval, 10*time.Second) /* */, Usage: "stats reporting interval"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second) /*  */, Usage: "connection retry interval"})
}

func (cfg *streamConfig) Exec(ctx context.Context, args []string) error {
	if cfg.uri == "" {
		return errNoURI
	}

	cfg.zones = make(chan gputrc.Zone, cfg.recvBuf)

	cfg.info.Printf("streaming from %s", cfg.uri)
	cfg.info.Printf("filter: %s", cfg.filter)
	cfg.debug.Printf("send buffer: %d", cfg.sendBuf)
	cfg.debug.Printf("recv buffer: %d", cfg.recvBuf)
	cfg.debug.Printf("stats interval: %s", cfg.statsInterval)
	cfg.debug.Printf("retry interval: %s", cfg.retryInterval)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			cfg.runStream(ctx)
			return nil
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.writeZones(ctx)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	return g.Run()
}

func (cfg *streamConfig) runStream(ctx context.Context) {
	var (
		lastDataTime atomic.Value
		initCount    int
	)

	// This function is called on every received event.
	onRead := func(ctx context.Context, eventType string, eventData []byte) {
		lastDataTime.Store(time.Now())

		switch eventType {
		case "init":
			if initCount == 0 {
				cfg.debug.Printf("stream connected")
			} else {
				cfg.debug.Printf("stream reconnected")
			}
			initCount++

		case "stats":
			var stats gputrcstream.Stats
			if err := json.Unmarshal(eventData, &stats); err != nil {
				cfg.debug.Printf("stats error: %v", err)
			} else {
				cfg.debug.Printf("%s", stats)
			}
		}
	}

	// This goroutine reports if it's been too long without any data.
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)

		ticker := time.NewTicker(cfg.statsInterval)
		defer ticker.Stop()

		for {
			select {
			case ts := <-ticker.C:
				last, ok := lastDataTime.Load().(time.Time)
				delta := ts.Sub(last)
				switch {
				case !ok:
					cfg.debug.Printf("no data")
				case delta > 2*cfg.statsInterval:
					cfg.debug.Printf("last data %s ago", delta.Truncate(100*time.Millisecond))
				}

			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		<-reporterDone
	}()

	transport := &http.Transport{}
	unixtransport.Register(transport)

	sc := &gputrcweb.StreamClient{
		HTTPClient:    &http.Client{Transport: transport},
		URI:           cfg.uri,
		SendBuffer:    cfg.sendBuf,
		OnRead:        onRead,
		RetryInterval: cfg.retryInterval,
		StatsInterval: cfg.statsInterval,
	}

	cfg.debug.Printf("starting stream")
	defer cfg.debug.Printf("stream stopped")

	for ctx.Err() == nil {
		subctx, cancel := context.WithCancel(ctx)                        // per-iteration sub-context
		errc := make(chan error, 1)                                      // per-iteration stream result
		go func() { errc <- sc.Stream(subctx, cfg.filter, cfg.zones) }() // returns only on terminal errors

		select {
		case <-subctx.Done():
			cfg.debug.Printf("stream done") // parent context was canceled, so we should stop
			cancel()
			<-errc
			return

		case err := <-errc:
			cfg.debug.Printf("stream error, will retry (%v)", err)
			cancel()
			contextSleep(ctx, cfg.retryInterval)
			continue
		}
	}
}

func (cfg *streamConfig) writeZones(ctx context.Context) error {
	var emit func(z gputrc.Zone)
	switch cfg.output {
	case "ndjson":
		enc := json.NewEncoder(cfg.stdout)
		emit = func(z gputrc.Zone) { enc.Encode(z) }
	default:
		emit = cfg.printZone
	}

	var count uint64
	for {
		select {
		case z := <-cfg.zones:
			count++
			emit(z)
		case <-ctx.Done():
			cfg.debug.Printf("emitted zone count %d", count)
			return ctx.Err()
		}
	}
}

func (cfg *streamConfig) printZone(z gputrc.Zone) {
	dur := "-"
	if !z.Sentinel {
		dur = gpuutil.HumanizeDuration(z.Duration())
	}
	fmt.Fprintf(cfg.stdout, "%s  %-12s %-20s %8s  %s:%d\n",
		z.HostEnd.Format("15:04:05.000"), z.ContextName, z.Name, dur, z.File, z.Line)
}
