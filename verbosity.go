package gputrc

import "fmt"

// Verbosity filters instrumentation calls by priority. Every zone operation
// carries a verbosity; when it exceeds the verbosity the context was
// configured with, the operation is a no-op and consumes no marker. This is
// the mechanism by which instrumentation density is tunable without
// recompilation.
type Verbosity uint8

const (
	// VerbosityOff disables all device instrumentation on the context.
	VerbosityOff Verbosity = iota

	// VerbosityCoarse traces submission-level zones, e.g. whole command
	// buffers.
	VerbosityCoarse

	// VerbosityFine traces individual dispatches within a submission.
	VerbosityFine

	// VerbosityVerbose traces everything, including internal transfer and
	// synchronization operations.
	VerbosityVerbose
)

// String implements fmt.Stringer.
func (v Verbosity) String() string {
	switch v {
	case VerbosityOff:
		return "off"
	case VerbosityCoarse:
		return "coarse"
	case VerbosityFine:
		return "fine"
	case VerbosityVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("verbosity(%d)", uint8(v))
	}
}

// ParseVerbosity converts the string names accepted from flags and config
// into a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "off", "none":
		return VerbosityOff, nil
	case "coarse":
		return VerbosityCoarse, nil
	case "fine":
		return VerbosityFine, nil
	case "verbose", "full":
		return VerbosityVerbose, nil
	default:
		return VerbosityOff, fmt.Errorf("invalid verbosity %q", s)
	}
}
