package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstore"
	"github.com/gputrc/gputrc/gputrcweb"
)

type selectConfig struct {
	*rootConfig

	uri            string
	limit          int
	includeRequest bool
	includeStats   bool
}

func (cfg *selectConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*             */, Value: ffval.NewValue(&cfg.uri) /*              */, Usage: "zone server URI (required)", Placeholder: "URI"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'n', LongName: "limit" /*           */, Value: ffval.NewValueDefault(&cfg.limit, 100) /* */, Usage: "maximum number of zones to return"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "include-request" /* */, Value: ffval.NewValue(&cfg.includeRequest) /*   */, Usage: "include select request in output", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "include-stats" /*   */, Value: ffval.NewValue(&cfg.includeStats) /*     */, Usage: "include per-context statistics in output", NoDefault: true})
}

func (cfg *selectConfig) Exec(ctx context.Context, args []string) error {
	if cfg.uri == "" {
		return errNoURI
	}

	transport := &http.Transport{}
	unixtransport.Register(transport)

	client := gputrcweb.NewClient(&http.Client{Transport: transport}, cfg.uri)

	req := &gputrcstore.SelectRequest{
		Filter: cfg.filter,
		Limit:  cfg.limit,
	}

	cfg.debug.Printf("request: filter: %s", cfg.filter)
	cfg.debug.Printf("request: limit: %d", cfg.limit)

	res, err := client.Select(ctx, req)
	if err != nil {
		return fmt.Errorf("execute select: %w", err)
	}

	cfg.debug.Printf("response: total: %d", res.TotalCount)
	cfg.debug.Printf("response: matched: %d", res.MatchCount)
	cfg.debug.Printf("response: returned: %d", len(res.Zones))
	cfg.debug.Printf("response: duration: %s", res.Duration)

	out := struct {
		Request *gputrcstore.SelectRequest `json:"request,omitempty"`
		Stats   []gputrcstore.Stats        `json:"stats,omitempty"`
		Zones   []gputrc.Zone              `json:"zones"`
	}{
		Zones: res.Zones,
	}
	if cfg.includeRequest {
		out.Request = req
	}
	if cfg.includeStats {
		out.Stats = res.Stats
	}

	enc := json.NewEncoder(cfg.stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	return nil
}
