package gputrc

// ContextKind describes the device API a tracing context instruments. It is
// passed through to the sink at registration and otherwise uninterpreted.
type ContextKind uint8

const (
	KindInvalid ContextKind = iota
	KindOpenGL
	KindVulkan
	KindOpenCL
	KindDirect3D12
	KindDirect3D11
	KindCUDA
	KindMetal
)

// String implements fmt.Stringer.
func (k ContextKind) String() string {
	switch k {
	case KindOpenGL:
		return "OpenGL"
	case KindVulkan:
		return "Vulkan"
	case KindOpenCL:
		return "OpenCL"
	case KindDirect3D12:
		return "Direct3D12"
	case KindDirect3D11:
		return "Direct3D11"
	case KindCUDA:
		return "CUDA"
	case KindMetal:
		return "Metal"
	default:
		return "invalid"
	}
}

// QueryID identifies a marker within its context's pool. It is stable for the
// lifetime of the context: a marker's query ID is its pool index, which
// constrains pool capacity to [MaxCapacity].
type QueryID uint16

// SourceLocation is the name and source position payload attached to the
// beginning of a zone.
type SourceLocation struct {
	Name     string `json:"name,omitempty"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Calibration correlates one device timestamp with one host timestamp, making
// later device timestamps interpretable on the host timeline.
type Calibration struct {
	// CPUTimestamp is the host clock reading, in nanoseconds, taken
	// immediately after the base marker completed on the device.
	CPUTimestamp int64 `json:"cpu_timestamp"`

	// GPUTimestamp is the device timestamp at the anchor. Zero for drivers
	// that only expose relative timing between events.
	GPUTimestamp int64 `json:"gpu_timestamp"`

	// Period converts device timestamp units to nanoseconds.
	Period float64 `json:"period"`

	// Calibrated is false when the anchor is best-effort only, i.e. the
	// host/device offset may drift over the lifetime of the context.
	Calibrated bool `json:"calibrated"`
}

// Registration is the context metadata passed to a sink when a tracing
// context is created.
type Registration struct {
	Kind        ContextKind `json:"kind"`
	Name        string      `json:"name"`
	Calibration Calibration `json:"calibration"`
}

// Sink receives context registrations, zone open/close notifications, and
// device timestamps from one or more tracing contexts. The core never reads
// back from the sink.
//
// Zone and timestamp notifications arrive on whatever goroutine invoked the
// corresponding context operation; implementations must be safe for
// concurrent use.
type Sink interface {
	// RegisterContext allocates an identifier for a new tracing context.
	// Identifiers are uint8 by convention: there is a global limit of 255
	// device zone contexts, and ID 255 is reserved.
	RegisterContext(reg Registration) (uint8, error)

	// ZoneBegin opens a zone identified by the given query ID.
	ZoneBegin(ctxID uint8, queryID QueryID, loc SourceLocation)

	// ZoneBeginExternal is ZoneBegin for call sites whose location payload is
	// constructed at runtime rather than from static program data.
	ZoneBeginExternal(ctxID uint8, queryID QueryID, loc SourceLocation)

	// ZoneEnd closes the most recently opened zone of the context, binding it
	// to the given query ID.
	ZoneEnd(ctxID uint8, queryID QueryID)

	// NotifyTimestamp reports the device-relative time of a collected query,
	// in nanoseconds since the context's calibration anchor. A zero timestamp
	// is the sentinel for a query whose chain was recycled without ever being
	// submitted.
	NotifyTimestamp(ctxID uint8, queryID QueryID, timestamp int64)
}

//
//
//

// NopSink is a Sink that accepts and discards everything.
type NopSink struct{}

var _ Sink = NopSink{}

// RegisterContext implements Sink. Every context gets ID zero, which is fine,
// because nothing downstream will ever observe it.
func (NopSink) RegisterContext(Registration) (uint8, error) {
	return 0, nil
}

// ZoneBegin implements Sink.
func (NopSink) ZoneBegin(uint8, QueryID, SourceLocation) {}

// ZoneBeginExternal implements Sink.
func (NopSink) ZoneBeginExternal(uint8, QueryID, SourceLocation) {}

// ZoneEnd implements Sink.
func (NopSink) ZoneEnd(uint8, QueryID) {}

// NotifyTimestamp implements Sink.
func (NopSink) NotifyTimestamp(uint8, QueryID, int64) {}
