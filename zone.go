package gputrc

import "time"

// Zone is one completed unit of traced device work: a begin/end query pair
// whose timestamps have both been collected. Zones are produced by sink
// implementations such as [github.com/gputrc/gputrc/gputrcstore], not by the
// tracing context itself, which only ever reports raw queries.
type Zone struct {
	// ID uniquely identifies the zone, across contexts.
	ID string `json:"id"`

	// ContextID and ContextName identify the tracing context, i.e. the device
	// queue or stream, that produced the zone.
	ContextID   uint8  `json:"context_id"`
	ContextName string `json:"context_name"`

	// Kind is the device API of the producing context.
	Kind ContextKind `json:"kind"`

	// Location payload captured when the zone was opened.
	Name     string `json:"name,omitempty"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`

	// BeginQuery and EndQuery are the pool query IDs that bracketed the zone.
	BeginQuery QueryID `json:"begin_query"`
	EndQuery   QueryID `json:"end_query"`

	// Start and End are device-relative nanoseconds since the context's
	// calibration anchor.
	Start int64 `json:"start"`
	End   int64 `json:"end"`

	// HostStart and HostEnd are the start and end projected onto the host
	// timeline via the context calibration. Best effort: host/device clock
	// drift is not corrected after the initial calibration.
	HostStart time.Time `json:"host_start"`
	HostEnd   time.Time `json:"host_end"`

	// Sentinel is true when the zone's chain was recycled without ever being
	// submitted to the device, and its timestamps are the zero sentinel
	// rather than measurements.
	Sentinel bool `json:"sentinel,omitempty"`
}

// Duration returns the device time spent in the zone.
func (z Zone) Duration() time.Duration {
	return time.Duration(z.End-z.Start) * time.Nanosecond
}
