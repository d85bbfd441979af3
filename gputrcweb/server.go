// Package gputrcweb exposes a zone store and broker over HTTP: JSON select
// requests for retained zones, and a server-sent-event stream of zones as
// they complete. The package also provides the matching clients.
package gputrcweb

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstore"
	"github.com/gputrc/gputrc/gputrcstream"
)

// ZoneServer provides an HTTP interface to a zone store and, optionally, to
// a live zone broker.
type ZoneServer struct {
	// Selecter answers select requests. Required.
	Selecter gputrcstore.Selecter

	// Streamer serves requests which Accept: text/event-stream. Optional;
	// without it, stream requests are rejected.
	Streamer gputrcstream.Streamer

	// Logf, if set, receives handler diagnostics.
	Logf func(format string, args ...any)
}

// NewZoneServer returns a server over the given store and broker. The broker
// may be nil.
func NewZoneServer(store *gputrcstore.Store, broker *gputrcstream.Broker) *ZoneServer {
	s := &ZoneServer{
		Selecter: store,
	}
	if broker != nil {
		s.Streamer = broker
	}
	return s
}

func (s *ZoneServer) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

// ServeHTTP implements http.Handler.
func (s *ZoneServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if requestExplicitlyAccepts(r, "text/event-stream") {
		s.handleStream(w, r)
		return
	}
	s.handleSelect(w, r)
}

// SelectData is the payload for select responses.
type SelectData struct {
	Request  gputrcstore.SelectRequest  `json:"request"`
	Response gputrcstore.SelectResponse `json:"response"`
	Problems []string                   `json:"problems,omitempty"`
}

func (s *ZoneServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		isJSON = strings.Contains(r.Header.Get("content-type"), "application/json")
		data   = SelectData{}
	)

	switch {
	case isJSON:
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
		if err := json.NewDecoder(body).Decode(&data.Request); err != nil {
			s.logf("decode JSON select request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

	default:
		data.Request = gputrcstore.SelectRequest{
			Filter: parseFilter(r),
			Limit:  parseRange(r.URL.Query().Get("n"), strconv.Atoi, gputrcstore.SelectRequestLimitMin, gputrcstore.SelectRequestLimitDefault, gputrcstore.SelectRequestLimitMax),
		}
	}

	for _, err := range data.Request.Normalize() {
		data.Problems = append(data.Problems, err.Error())
	}

	res, err := s.Selecter.Select(ctx, &data.Request)
	if err != nil {
		s.logf("execute select request: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data.Response = *res
	data.Problems = append(data.Problems, res.Problems...)

	w.Header().Set("content-type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logf("encode select response: %v", err)
	}
}

func (s *ZoneServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Streamer == nil {
		http.Error(w, "streaming not supported", http.StatusNotImplemented)
		return
	}

	var f gputrc.Filter
	switch {
	case strings.Contains(r.Header.Get("content-type"), "application/json"):
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
		if err := json.NewDecoder(body).Decode(&f); err != nil {
			s.logf("decode stream filter (%v), using default", err)
		}
	default:
		f = parseFilter(r)
	}

	if errs := f.Normalize(); len(errs) > 0 {
		http.Error(w, errs[0].Error(), http.StatusBadRequest)
		return
	}

	var (
		statsInterval = parseDefault(r.URL.Query().Get("stats"), time.ParseDuration, 10*time.Second)
		sendbuf       = parseRange(r.URL.Query().Get("sendbuf"), strconv.Atoi, 0, 100, 100000)
		zonec         = make(chan gputrc.Zone, sendbuf)
		donec         = make(chan struct{})
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		stats, err := s.Streamer.Stream(ctx, f, zonec)
		s.logf("stream done: %s (error: %v)", stats, err)
		close(donec)
	}()
	defer func() {
		<-donec
	}()

	eventsource.Handler(func(lastID string, encoder *eventsource.Encoder, stop <-chan bool) {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		initc := make(chan struct{}, 1)
		initc <- struct{}{}

		for {
			select {
			case <-initc:
				data, err := json.Marshal(map[string]any{
					"filter":  f,
					"sendbuf": cap(zonec),
				})
				if err != nil {
					s.logf("JSON marshal init: %v", err)
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "init",
					Data: data,
				}); err != nil {
					s.logf("encode init: %v", err)
					continue
				}

			case <-ticker.C:
				stats, err := s.Streamer.StreamStats(ctx, zonec)
				if err != nil {
					s.logf("get stream stats: %v", err)
					continue
				}
				data, err := json.Marshal(stats)
				if err != nil {
					s.logf("JSON marshal stats: %v", err)
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "stats",
					Data: data,
				}); err != nil {
					s.logf("encode stats: %v", err)
					continue
				}

			case z := <-zonec:
				data, err := json.Marshal(z)
				if err != nil {
					s.logf("JSON marshal zone: %v", err)
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "zone",
					ID:   z.ID,
					Data: data,
				}); err != nil {
					s.logf("encode zone: %v", err)
					continue
				}

			case <-ctx.Done():
				return

			case <-stop:
				cancel()
				return
			}
		}
	}).ServeHTTP(w, r)
}
