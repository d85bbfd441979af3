package gputrcstore

import (
	"context"
	"sort"
	"time"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/internal/gpuutil"
)

// Select request limits.
const (
	SelectRequestLimitMin     = 1
	SelectRequestLimitDefault = 100
	SelectRequestLimitMax     = 1000
)

// SelectRequest describes a query over retained zones.
type SelectRequest struct {
	Filter gputrc.Filter `json:"filter"`
	Limit  int           `json:"limit,omitempty"`
}

// Normalize must be called before the request can be used.
func (req *SelectRequest) Normalize() []error {
	errs := req.Filter.Normalize()

	switch {
	case req.Limit <= 0:
		req.Limit = SelectRequestLimitDefault
	case req.Limit < SelectRequestLimitMin:
		req.Limit = SelectRequestLimitMin
	case req.Limit > SelectRequestLimitMax:
		req.Limit = SelectRequestLimitMax
	}

	return errs
}

// SelectResponse is the result of a select request.
type SelectResponse struct {
	Stats      []Stats       `json:"stats"`
	TotalCount int           `json:"total_count"`
	MatchCount int           `json:"match_count"`
	Zones      []gputrc.Zone `json:"zones"`
	Duration   time.Duration `json:"duration"`
	Problems   []string      `json:"problems,omitempty"`
}

// Selecter is anything that can answer select requests; it abstracts a local
// [Store] from the HTTP client of a remote one.
type Selecter interface {
	Select(ctx context.Context, req *SelectRequest) (*SelectResponse, error)
}

var _ Selecter = (*Store)(nil)

// Select walks every context's retained zones, applies the filter, and
// returns the most recent matches, newest first by host end time.
func (s *Store) Select(ctx context.Context, req *SelectRequest) (*SelectResponse, error) {
	begin := time.Now()

	var problems []string
	for _, err := range req.Normalize() {
		problems = append(problems, err.Error())
	}

	s.mtx.Lock()
	states := make(map[uint8]*contextState, len(s.contexts))
	for id, cs := range s.contexts {
		states[id] = cs
	}
	s.mtx.Unlock()

	var (
		total   int
		matched int
		zones   []gputrc.Zone
	)
	for _, cs := range states {
		cs.zones.Walk(func(z gputrc.Zone) error {
			total++
			if !req.Filter.Allow(z) {
				return nil
			}
			matched++
			zones = append(zones, z)
			return nil
		})
	}

	sort.Slice(zones, func(i, j int) bool {
		return zones[i].HostEnd.After(zones[j].HostEnd)
	})

	if len(zones) > req.Limit {
		zones = zones[:req.Limit]
	}
	if zones == nil {
		zones = []gputrc.Zone{}
	}

	return &SelectResponse{
		Stats:      s.Stats(),
		TotalCount: total,
		MatchCount: matched,
		Zones:      zones,
		Duration:   gpuutil.TruncateDuration(time.Since(begin)),
		Problems:   problems,
	}, nil
}
