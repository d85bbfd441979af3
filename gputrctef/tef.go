// Package gputrctef renders zones in Chrome's Trace Event Format, which
// chrome://tracing, Perfetto, and speedscope can all open. Each zone becomes
// one complete ("X") event; each tracing context becomes a process, so
// per-queue timelines render as separate tracks.
package gputrctef

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gputrc/gputrc"
)

// TraceEvent is one entry in the traceEvents array.
type TraceEvent struct {
	Name      string         `json:"name,omitempty"`
	Phase     string         `json:"ph"`
	ProcessID int            `json:"pid"`
	ThreadID  int            `json:"tid"`
	Category  string         `json:"cat,omitempty"`
	Timestamp float64        `json:"ts"`            // microseconds
	Duration  float64        `json:"dur,omitempty"` // microseconds
	Args      map[string]any `json:"args,omitempty"`
}

// Profile is the JSON object format of a trace file.
type Profile struct {
	TraceEvents     []TraceEvent `json:"traceEvents"`
	DisplayTimeUnit string       `json:"displayTimeUnit,omitempty"`
}

const (
	phaseComplete = "X"
	phaseMetadata = "M"
)

// Writer accumulates zones and writes them out as a single trace file.
// Sentinel zones carry no measurements and are skipped. Writer is not safe
// for concurrent use.
type Writer struct {
	events []TraceEvent
	named  map[uint8]bool
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{
		named: map[uint8]bool{},
	}
}

// Add converts the zone to a trace event. Returns false for sentinel zones,
// which are dropped.
func (w *Writer) Add(z gputrc.Zone) bool {
	if z.Sentinel {
		return false
	}

	if !w.named[z.ContextID] {
		w.named[z.ContextID] = true
		w.events = append(w.events, TraceEvent{
			Name:      "process_name",
			Phase:     phaseMetadata,
			ProcessID: int(z.ContextID),
			Args: map[string]any{
				"name": fmt.Sprintf("%s (%s)", z.ContextName, z.Kind),
			},
		})
	}

	name := z.Name
	if name == "" {
		name = z.Function
	}

	ev := TraceEvent{
		Name:      name,
		Phase:     phaseComplete,
		ProcessID: int(z.ContextID),
		ThreadID:  0,
		Category:  "gpu",
		Timestamp: float64(z.Start) / 1e3,
		Duration:  float64(z.End-z.Start) / 1e3,
	}
	if z.Function != "" || z.File != "" {
		ev.Args = map[string]any{}
		if z.Function != "" {
			ev.Args["function"] = z.Function
		}
		if z.File != "" {
			ev.Args["source"] = fmt.Sprintf("%s:%d", z.File, z.Line)
		}
	}
	w.events = append(w.events, ev)

	return true
}

// Len returns the number of accumulated trace events.
func (w *Writer) Len() int {
	return len(w.events)
}

// WriteTo writes the accumulated events as a trace file.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	profile := Profile{
		TraceEvents:     w.events,
		DisplayTimeUnit: "ms",
	}
	if profile.TraceEvents == nil {
		profile.TraceEvents = []TraceEvent{}
	}

	buf, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode trace profile: %w", err)
	}

	n, err := dst.Write(buf)
	return int64(n), err
}
