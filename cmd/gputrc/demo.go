package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstore"
	"github.com/gputrc/gputrc/gputrcstream"
	"github.com/gputrc/gputrc/gputrctef"
	"github.com/gputrc/gputrc/gputrcweb"
	"github.com/gputrc/gputrc/internal/gpusim"
)

type demoConfig struct {
	*rootConfig

	listenAddr string
	queues     int
	capacity   int
	retain     int
	interval   time.Duration
	verbosity  string
	tefPath    string
}

func (cfg *demoConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'a', LongName: "listen-addr" /* */, Value: ffval.NewValueDefault(&cfg.listenAddr, "localhost:8080") /*  */, Usage: "HTTP listen address"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "queues" /*      */, Value: ffval.NewValueDefault(&cfg.queues, 2) /*                    */, Usage: "number of simulated device queues"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "capacity" /*    */, Value: ffval.NewValueDefault(&cfg.capacity, 1024) /*               */, Usage: "timestamp marker pool capacity per queue"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retain" /*      */, Value: ffval.NewValueDefault(&cfg.retain, 1000) /*                 */, Usage: "max zones retained per context"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "interval" /*    */, Value: ffval.NewValueDefault(&cfg.interval, 100*time.Millisecond) /* */, Usage: "interval between simulated submissions"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "verbosity" /*   */, Value: ffval.NewEnum(&cfg.verbosity, "fine", "coarse", "verbose", "off") /* */, Usage: "tracing verbosity: off, coarse, fine, verbose"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "tef" /*         */, Value: ffval.NewValue(&cfg.tefPath) /*                             */, Usage: "write a Chrome trace file here on shutdown", NoDefault: true, Placeholder: "PATH"})
}

func (cfg *demoConfig) Exec(ctx context.Context, args []string) error {
	verbosity, err := gputrc.ParseVerbosity(cfg.verbosity)
	if err != nil {
		return err
	}

	var (
		device = gpusim.NewDevice(gpusim.DeviceConfig{Step: time.Microsecond})
		broker = gputrcstream.NewBroker()
		store  = gputrcstore.NewStore(gputrcstore.Config{MaxZonesPerContext: cfg.retain, Publisher: broker})
	)

	type queue struct {
		name   string
		stream *gpusim.Stream
		tracer *gputrc.Context
	}

	queues := make([]*queue, cfg.queues)
	for i := range queues {
		name := fmt.Sprintf("queue-%d", i)
		stream := device.NewStream(name)
		tracer, err := gputrc.New(gputrc.Config{
			Driver:    device,
			Sink:      store,
			QueueName: name,
			Kind:      gputrc.KindCUDA,
			Stream:    stream,
			Verbosity: verbosity,
			Capacity:  cfg.capacity,
			Logf:      cfg.debug.Printf,
		})
		if err != nil {
			return fmt.Errorf("create tracing context for %s: %w", name, err)
		}
		defer tracer.Close()
		queues[i] = &queue{name: name, stream: stream, tracer: tracer}
	}

	cfg.info.Printf("simulating %d device queue(s), submit interval %s, verbosity %s", cfg.queues, cfg.interval, verbosity)

	var g run.Group

	{
		server := &http.Server{
			Addr:    cfg.listenAddr,
			Handler: gputrcweb.NewZoneServer(store, broker),
		}
		g.Add(func() error {
			cfg.info.Printf("zone server listening on http://%s", cfg.listenAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(cfg.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					for _, q := range queues {
						cfg.submit(device, q.tracer, q.stream)
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	if cfg.tefPath != "" {
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.writeTEF(ctx, broker)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	return g.Run()
}

// dispatches approximates the kernels a small inference workload would issue
// per submission.
var dispatches = []gputrc.SourceLocation{
	{Name: "matmul", Function: "DispatchMatmul", File: "kernels/matmul.cu", Line: 41},
	{Name: "conv2d", Function: "DispatchConv2D", File: "kernels/conv.cu", Line: 112},
	{Name: "softmax", Function: "DispatchSoftmax", File: "kernels/softmax.cu", Line: 17},
	{Name: "reduce_sum", Function: "DispatchReduce", File: "kernels/reduce.cu", Line: 88},
	{Name: "transpose", Function: "DispatchTranspose", File: "kernels/transpose.cu", Line: 29},
}

// submit runs one simulated command buffer through the full marker lifecycle:
// begin/end zones while recording, then submit, collect, and recycle.
func (cfg *demoConfig) submit(device *gpusim.Device, tracer *gputrc.Context, stream *gpusim.Stream) {
	var chain gputrc.EventChain

	count := 1 + rand.Intn(len(dispatches))
	for _, loc := range dispatches[:count] {
		if err := tracer.StreamZoneBeginExternal(&chain, stream, gputrc.VerbosityFine, loc); err != nil {
			cfg.debug.Printf("zone begin %s: %v", loc.Name, err)
			continue
		}
		device.Advance(time.Duration(50+rand.Intn(1950)) * time.Microsecond)
		if err := tracer.StreamZoneEnd(&chain, stream, gputrc.VerbosityFine); err != nil {
			cfg.debug.Printf("zone end %s: %v", loc.Name, err)
		}
	}

	tracer.NotifySubmitted(&chain)
	tracer.Collect()
	tracer.FreeChain(&chain)
}

// writeTEF subscribes to the zone stream for the lifetime of the demo and
// writes everything it saw as a Chrome trace file on shutdown.
func (cfg *demoConfig) writeTEF(ctx context.Context, broker *gputrcstream.Broker) error {
	var (
		writer = gputrctef.NewWriter()
		zonec  = make(chan gputrc.Zone, 100)
		donec  = make(chan struct{})
	)

	go func() {
		defer close(donec)
		stats, err := broker.Stream(ctx, gputrc.Filter{}, zonec)
		cfg.debug.Printf("TEF subscriber done: %s (%v)", stats, err)
	}()

	for {
		select {
		case z := <-zonec:
			writer.Add(z)
		case <-ctx.Done():
			<-donec
			for {
				select { // drain anything published before the broker stopped
				case z := <-zonec:
					writer.Add(z)
					continue
				default:
				}
				break
			}
			f, err := os.Create(cfg.tefPath)
			if err != nil {
				return fmt.Errorf("create trace file: %w", err)
			}
			defer f.Close()
			if _, err := writer.WriteTo(f); err != nil {
				return fmt.Errorf("write trace file: %w", err)
			}
			cfg.info.Printf("wrote %d trace event(s) to %s", writer.Len(), cfg.tefPath)
			return ctx.Err()
		}
	}
}
