package gputrcstore_test

import (
	"sync"
	"testing"
	"time"

	"github.com/gputrc/gputrc"
	"github.com/gputrc/gputrc/gputrcstore"
)

var testCalibration = gputrc.Calibration{
	CPUTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano(),
	GPUTimestamp: 0,
	Period:       1.0,
	Calibrated:   false,
}

func register(t *testing.T, s *gputrcstore.Store, name string) uint8 {
	t.Helper()

	id, err := s.RegisterContext(gputrc.Registration{
		Kind:        gputrc.KindCUDA,
		Name:        name,
		Calibration: testCalibration,
	})
	AssertNoError(t, err)
	return id
}

// capture collects published zones.
type capture struct {
	mtx   sync.Mutex
	zones []gputrc.Zone
}

func (c *capture) Publish(z gputrc.Zone) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.zones = append(c.zones, z)
}

func (c *capture) Zones() []gputrc.Zone {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]gputrc.Zone{}, c.zones...)
}

func TestStoreAssemblesZones(t *testing.T) {
	t.Parallel()

	var (
		pub = &capture{}
		s   = gputrcstore.NewStore(gputrcstore.Config{Publisher: pub})
		id  = register(t, s, "queue-0")
		loc = gputrc.SourceLocation{Name: "matmul", Function: "DispatchMatmul", File: "matmul.cu", Line: 41}
	)

	s.ZoneBegin(id, 0, loc)
	s.ZoneEnd(id, 1)

	// Nothing is complete until both timestamps arrive.
	AssertEqual(t, 0, len(pub.Zones()))

	s.NotifyTimestamp(id, 0, 1000)
	AssertEqual(t, 0, len(pub.Zones()))

	s.NotifyTimestamp(id, 1, 5000)
	zones := pub.Zones()
	AssertEqual(t, 1, len(zones))

	z := zones[0]
	if z.ID == "" {
		t.Error("zone has no ID")
	}
	ExpectEqual(t, id, z.ContextID)
	ExpectEqual(t, "queue-0", z.ContextName)
	ExpectEqual(t, gputrc.KindCUDA, z.Kind)
	ExpectEqual(t, "matmul", z.Name)
	ExpectEqual(t, gputrc.QueryID(0), z.BeginQuery)
	ExpectEqual(t, gputrc.QueryID(1), z.EndQuery)
	ExpectEqual(t, int64(1000), z.Start)
	ExpectEqual(t, int64(5000), z.End)
	ExpectEqual(t, 4*time.Microsecond, z.Duration())
	ExpectEqual(t, false, z.Sentinel)

	// Host projection anchors device time zero at the calibration instant.
	wantStart := time.Unix(0, testCalibration.CPUTimestamp+1000).UTC()
	ExpectEqual(t, wantStart, z.HostStart)

	stats := s.Stats()
	AssertEqual(t, 1, len(stats))
	ExpectEqual(t, 0, stats[0].Open)
	ExpectEqual(t, 0, stats[0].Awaiting)
	ExpectEqual(t, 1, stats[0].Retained)
}

func TestStoreNestedZones(t *testing.T) {
	t.Parallel()

	var (
		pub = &capture{}
		s   = gputrcstore.NewStore(gputrcstore.Config{Publisher: pub})
		id  = register(t, s, "queue-0")
	)

	// Ends close the most recently opened zone, so nested zones pair up
	// inside-out.
	s.ZoneBegin(id, 0, gputrc.SourceLocation{Name: "outer"})
	s.ZoneBegin(id, 1, gputrc.SourceLocation{Name: "inner"})
	s.ZoneEnd(id, 2)
	s.ZoneEnd(id, 3)

	for qid, ts := range map[gputrc.QueryID]int64{0: 100, 1: 200, 2: 300, 3: 400} {
		s.NotifyTimestamp(id, qid, ts)
	}

	zones := pub.Zones()
	AssertEqual(t, 2, len(zones))

	byName := map[string]gputrc.Zone{}
	for _, z := range zones {
		byName[z.Name] = z
	}
	ExpectEqual(t, gputrc.QueryID(1), byName["inner"].BeginQuery)
	ExpectEqual(t, gputrc.QueryID(2), byName["inner"].EndQuery)
	ExpectEqual(t, gputrc.QueryID(0), byName["outer"].BeginQuery)
	ExpectEqual(t, gputrc.QueryID(3), byName["outer"].EndQuery)
}

func TestStoreSentinelZones(t *testing.T) {
	t.Parallel()

	var (
		pub = &capture{}
		s   = gputrcstore.NewStore(gputrcstore.Config{Publisher: pub})
		id  = register(t, s, "queue-0")
	)

	// A recycled chain reports zero for both queries.
	s.ZoneBegin(id, 0, gputrc.SourceLocation{Name: "dropped"})
	s.ZoneEnd(id, 1)
	s.NotifyTimestamp(id, 0, 0)
	s.NotifyTimestamp(id, 1, 0)

	zones := pub.Zones()
	AssertEqual(t, 1, len(zones))
	ExpectEqual(t, true, zones[0].Sentinel)
	ExpectEqual(t, time.Duration(0), zones[0].Duration())
}

func TestStoreDropsStrays(t *testing.T) {
	t.Parallel()

	var (
		pub = &capture{}
		s   = gputrcstore.NewStore(gputrcstore.Config{Publisher: pub})
		id  = register(t, s, "queue-0")
	)

	s.ZoneEnd(id, 0)               // unbalanced end
	s.NotifyTimestamp(id, 9, 1000) // query without a zone

	// Unknown context.
	s.ZoneBegin(99, 0, gputrc.SourceLocation{})
	s.NotifyTimestamp(99, 0, 1000)

	AssertEqual(t, 0, len(pub.Zones()))

	stats := s.Stats()
	AssertEqual(t, 1, len(stats))
	ExpectEqual(t, 0, stats[0].Open)
	ExpectEqual(t, 0, stats[0].Awaiting)
}

func TestStorePendingForever(t *testing.T) {
	t.Parallel()

	var (
		s  = gputrcstore.NewStore(gputrcstore.Config{})
		id = register(t, s, "queue-0")
	)

	// A zone whose end query never reports, e.g. because its chain was
	// dequeued by a partial collection, stays pending and observable.
	s.ZoneBegin(id, 0, gputrc.SourceLocation{Name: "lost"})
	s.ZoneEnd(id, 1)
	s.NotifyTimestamp(id, 0, 1000)

	stats := s.Stats()
	AssertEqual(t, 1, len(stats))
	ExpectEqual(t, 2, stats[0].Awaiting)
	ExpectEqual(t, 0, stats[0].Retained)
}

func TestStoreRegistryFull(t *testing.T) {
	t.Parallel()

	s := gputrcstore.NewStore(gputrcstore.Config{})

	for i := 0; i < 255; i++ {
		id, err := s.RegisterContext(gputrc.Registration{Name: "q"})
		AssertNoError(t, err)
		AssertEqual(t, uint8(i), id)
	}

	_, err := s.RegisterContext(gputrc.Registration{Name: "q"})
	AssertEqual(t, gputrcstore.ErrRegistryFull, err)
}

func TestStoreRetentionBound(t *testing.T) {
	t.Parallel()

	var (
		s  = gputrcstore.NewStore(gputrcstore.Config{MaxZonesPerContext: 3})
		id = register(t, s, "queue-0")
	)

	for i := 0; i < 10; i++ {
		begin, end := gputrc.QueryID(2*i), gputrc.QueryID(2*i+1)
		s.ZoneBegin(id, begin, gputrc.SourceLocation{Name: "z"})
		s.ZoneEnd(id, end)
		s.NotifyTimestamp(id, begin, int64(1000*i+100))
		s.NotifyTimestamp(id, end, int64(1000*i+200))
	}

	stats := s.Stats()
	AssertEqual(t, 1, len(stats))
	ExpectEqual(t, 3, stats[0].Retained)
}

func TestStoreResize(t *testing.T) {
	t.Parallel()

	var (
		s  = gputrcstore.NewStore(gputrcstore.Config{MaxZonesPerContext: 5})
		id = register(t, s, "queue-0")
	)

	complete := func(i int) {
		begin, end := gputrc.QueryID(2*i), gputrc.QueryID(2*i+1)
		s.ZoneBegin(id, begin, gputrc.SourceLocation{Name: "z"})
		s.ZoneEnd(id, end)
		s.NotifyTimestamp(id, begin, int64(1000*i+100))
		s.NotifyTimestamp(id, end, int64(1000*i+200))
	}

	for i := 0; i < 5; i++ {
		complete(i)
	}

	stats := s.Stats()
	AssertEqual(t, 1, len(stats))
	ExpectEqual(t, 5, stats[0].Retained)

	// Shrinking truncates the oldest zones.
	s.Resize(2)
	stats = s.Stats()
	ExpectEqual(t, 2, stats[0].Retained)

	// The new bound sticks.
	for i := 5; i < 10; i++ {
		complete(i)
	}
	stats = s.Stats()
	ExpectEqual(t, 2, stats[0].Retained)

	// Growing makes room again.
	s.Resize(4)
	for i := 10; i < 20; i++ {
		complete(i)
	}
	stats = s.Stats()
	ExpectEqual(t, 4, stats[0].Retained)

	// Contexts registered after a resize get the new bound.
	id2 := register(t, s, "queue-1")
	for i := 0; i < 10; i++ {
		begin, end := gputrc.QueryID(2*i), gputrc.QueryID(2*i+1)
		s.ZoneBegin(id2, begin, gputrc.SourceLocation{Name: "z"})
		s.ZoneEnd(id2, end)
		s.NotifyTimestamp(id2, begin, int64(1000*i+100))
		s.NotifyTimestamp(id2, end, int64(1000*i+200))
	}
	stats = s.Stats()
	AssertEqual(t, 2, len(stats))
	for _, st := range stats {
		ExpectEqual(t, 4, st.Retained)
	}
}
