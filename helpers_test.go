package gputrc_test

import (
	"sync"
	"testing"

	"github.com/gputrc/gputrc"
)

func AssertEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Fatalf("want %v, have %v", want, have)
	}
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("error %v", err)
	}
}

func ExpectEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Errorf("want %v, have %v", want, have)
	}
}

//
//
//

// sinkCall is one recorded sink notification, in arrival order.
type sinkCall struct {
	Op        string // "begin", "begin-external", "end", "timestamp"
	ContextID uint8
	QueryID   gputrc.QueryID
	Timestamp int64
	Loc       gputrc.SourceLocation
}

// recorderSink records every sink notification for later assertions. It
// assigns context IDs starting from a fixed offset, so tests catch contexts
// that assume their ID rather than using what registration returned.
type recorderSink struct {
	mtx   sync.Mutex
	regs  []gputrc.Registration
	calls []sinkCall
}

var _ gputrc.Sink = (*recorderSink)(nil)

const recorderBaseID = 7

func (s *recorderSink) RegisterContext(reg gputrc.Registration) (uint8, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.regs = append(s.regs, reg)
	return uint8(recorderBaseID + len(s.regs) - 1), nil
}

func (s *recorderSink) ZoneBegin(ctxID uint8, queryID gputrc.QueryID, loc gputrc.SourceLocation) {
	s.record(sinkCall{Op: "begin", ContextID: ctxID, QueryID: queryID, Loc: loc})
}

func (s *recorderSink) ZoneBeginExternal(ctxID uint8, queryID gputrc.QueryID, loc gputrc.SourceLocation) {
	s.record(sinkCall{Op: "begin-external", ContextID: ctxID, QueryID: queryID, Loc: loc})
}

func (s *recorderSink) ZoneEnd(ctxID uint8, queryID gputrc.QueryID) {
	s.record(sinkCall{Op: "end", ContextID: ctxID, QueryID: queryID})
}

func (s *recorderSink) NotifyTimestamp(ctxID uint8, queryID gputrc.QueryID, timestamp int64) {
	s.record(sinkCall{Op: "timestamp", ContextID: ctxID, QueryID: queryID, Timestamp: timestamp})
}

func (s *recorderSink) record(c sinkCall) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.calls = append(s.calls, c)
}

// Calls returns recorded calls matching the op, in order, or every call when
// op is empty.
func (s *recorderSink) Calls(op string) []sinkCall {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var calls []sinkCall
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

func (s *recorderSink) Registration(t *testing.T) gputrc.Registration {
	t.Helper()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if len(s.regs) != 1 {
		t.Fatalf("registration count: want 1, have %d", len(s.regs))
	}
	return s.regs[0]
}
