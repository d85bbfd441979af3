// Package gputrcstore provides a [gputrc.Sink] that assembles raw query
// notifications into completed [gputrc.Zone] values, maintains the most
// recent zones in per-context ring buffers, and answers select requests over
// them.
package gputrcstore

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/internal/gpuringbuf"
)

// ErrRegistryFull is returned by RegisterContext once all 255 context IDs
// have been handed out. ID 255 is reserved.
var ErrRegistryFull = errors.New("gputrcstore: tracing context registry full")

// Publisher receives each zone as it completes. Implementations must not
// block; [github.com/gputrc/gputrc/gputrcstream.Broker] qualifies.
type Publisher interface {
	Publish(z gputrc.Zone)
}

// Config collects the parameters for [NewStore]. The zero value is valid.
type Config struct {
	// MaxZonesPerContext bounds each context's ring buffer. Default 1000.
	MaxZonesPerContext int

	// Publisher, if set, receives every completed zone, e.g. for live
	// streaming.
	Publisher Publisher
}

// Store is a sink that pairs zone begin/end notifications with their
// collected timestamps. A zone is complete when its end query is known and
// both queries have reported timestamps; completed zones are stamped with a
// ULID, projected onto the host timeline via the context calibration,
// retained in a ring buffer, and handed to the publisher.
//
// Zones whose chains are dequeued by a partial collection never receive all
// of their timestamps, and remain pending indefinitely; [Store.Stats]
// exposes the pending count so that operators can observe the loss.
type Store struct {
	max       int
	publisher Publisher

	mtx      sync.Mutex
	contexts map[uint8]*contextState
	nextID   uint8
}

var _ gputrc.Sink = (*Store)(nil)

type contextState struct {
	name  string
	kind  gputrc.ContextKind
	cal   gputrc.Calibration
	open  []*pendingZone                  // begun, not yet ended, LIFO
	await map[gputrc.QueryID]*pendingZone // keyed by both queries, awaiting timestamps
	zones *gpuringbuf.RingBuffer[gputrc.Zone]
}

type pendingZone struct {
	loc         gputrc.SourceLocation
	begin, end  gputrc.QueryID
	haveEnd     bool
	beginTS     int64
	endTS       int64
	haveBeginTS bool
	haveEndTS   bool
}

// NewStore returns an empty store.
func NewStore(cfg Config) *Store {
	if cfg.MaxZonesPerContext <= 0 {
		cfg.MaxZonesPerContext = 1000
	}
	return &Store{
		max:       cfg.MaxZonesPerContext,
		publisher: cfg.Publisher,
		contexts:  map[uint8]*contextState{},
	}
}

// Resize changes the per-context zone retention to max, truncating the
// oldest zones in each context when necessary.
func (s *Store) Resize(max int) {
	if max <= 0 {
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.max = max
	for _, cs := range s.contexts {
		cs.zones.Resize(max)
	}
}

// RegisterContext implements gputrc.Sink.
func (s *Store) RegisterContext(reg gputrc.Registration) (uint8, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.nextID == 255 {
		return 0, ErrRegistryFull
	}

	id := s.nextID
	s.nextID++

	s.contexts[id] = &contextState{
		name:  reg.Name,
		kind:  reg.Kind,
		cal:   reg.Calibration,
		await: map[gputrc.QueryID]*pendingZone{},
		zones: gpuringbuf.NewRingBuffer[gputrc.Zone](s.max),
	}

	return id, nil
}

// ZoneBegin implements gputrc.Sink.
func (s *Store) ZoneBegin(ctxID uint8, queryID gputrc.QueryID, loc gputrc.SourceLocation) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	cs, ok := s.contexts[ctxID]
	if !ok {
		return
	}

	pz := &pendingZone{loc: loc, begin: queryID}
	cs.open = append(cs.open, pz)
	cs.await[queryID] = pz
}

// ZoneBeginExternal implements gputrc.Sink. The store keeps no static string
// table, so it is identical to ZoneBegin.
func (s *Store) ZoneBeginExternal(ctxID uint8, queryID gputrc.QueryID, loc gputrc.SourceLocation) {
	s.ZoneBegin(ctxID, queryID, loc)
}

// ZoneEnd implements gputrc.Sink, closing the most recently opened zone of
// the context.
func (s *Store) ZoneEnd(ctxID uint8, queryID gputrc.QueryID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	cs, ok := s.contexts[ctxID]
	if !ok {
		return
	}
	if len(cs.open) == 0 {
		return // unbalanced end, dropped
	}

	pz := cs.open[len(cs.open)-1]
	cs.open = cs.open[:len(cs.open)-1]

	pz.end = queryID
	pz.haveEnd = true
	cs.await[queryID] = pz
}

// NotifyTimestamp implements gputrc.Sink.
func (s *Store) NotifyTimestamp(ctxID uint8, queryID gputrc.QueryID, timestamp int64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	cs, ok := s.contexts[ctxID]
	if !ok {
		return
	}

	pz, ok := cs.await[queryID]
	if !ok {
		return // a query the store never saw a zone for, dropped
	}

	switch {
	case queryID == pz.begin && !pz.haveBeginTS:
		pz.beginTS = timestamp
		pz.haveBeginTS = true
	case pz.haveEnd && queryID == pz.end && !pz.haveEndTS:
		pz.endTS = timestamp
		pz.haveEndTS = true
	}

	if !pz.haveEnd || !pz.haveBeginTS || !pz.haveEndTS {
		return
	}

	delete(cs.await, pz.begin)
	delete(cs.await, pz.end)

	z := s.complete(ctxID, cs, pz)
	cs.zones.Add(z)
	if s.publisher != nil {
		s.publisher.Publish(z)
	}
}

// complete builds the finished zone record. Caller must hold the lock.
func (s *Store) complete(ctxID uint8, cs *contextState, pz *pendingZone) gputrc.Zone {
	var (
		sentinel = pz.beginTS == 0 && pz.endTS == 0
		period   = cs.cal.Period
		hostNS   = cs.cal.CPUTimestamp
	)
	if period == 0 {
		period = 1.0
	}

	z := gputrc.Zone{
		ID:          ulid.Make().String(),
		ContextID:   ctxID,
		ContextName: cs.name,
		Kind:        cs.kind,
		Name:        pz.loc.Name,
		Function:    pz.loc.Function,
		File:        pz.loc.File,
		Line:        pz.loc.Line,
		BeginQuery:  pz.begin,
		EndQuery:    pz.end,
		Start:       pz.beginTS,
		End:         pz.endTS,
		Sentinel:    sentinel,
	}

	z.HostStart = time.Unix(0, hostNS+int64(float64(pz.beginTS)*period)).UTC()
	z.HostEnd = time.Unix(0, hostNS+int64(float64(pz.endTS)*period)).UTC()

	return z
}

// Stats describe the state of one context within the store.
type Stats struct {
	ContextID   uint8              `json:"context_id"`
	ContextName string             `json:"context_name"`
	Kind        gputrc.ContextKind `json:"kind"`
	Open        int                `json:"open"`     // zones begun but not ended
	Awaiting    int                `json:"awaiting"` // queries still awaiting timestamps
	Retained    int                `json:"retained"` // completed zones in the ring buffer
}

// Stats returns per-context statistics, in context ID order.
func (s *Store) Stats() []Stats {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := make([]Stats, 0, len(s.contexts))
	for id := 0; id < int(s.nextID); id++ {
		cs, ok := s.contexts[uint8(id)]
		if !ok {
			continue
		}
		_, _, count := cs.zones.Stats()
		res = append(res, Stats{
			ContextID:   uint8(id),
			ContextName: cs.name,
			Kind:        cs.kind,
			Open:        len(cs.open),
			Awaiting:    len(cs.await),
			Retained:    count,
		})
	}

	return res
}
