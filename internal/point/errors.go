package point

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoData signals that the provider has no records for the
	// requested station, sensor and window. It is a routine outcome,
	// not a failure, and is distinct from a zero-row table (which means
	// the provider answered with rows whose values are all absent).
	ErrNoData = errors.New("no records for request")

	// ErrNotSupported is returned when a network cannot serve an
	// operation at all, e.g. region discovery on a gridded forecast
	// source or snow-course resolution on a telemetry-only network.
	ErrNotSupported = errors.New("operation not supported by this network")
)

// TransportError wraps a network, auth or timeout failure talking to a
// provider. Retryable by the caller.
type TransportError struct {
	Network   Network
	StationID string
	Sensor    string
	Window    Window
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s station %s sensor %s [%s to %s]: transport: %v",
		e.Network, e.StationID, e.Sensor,
		e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports an unparseable or internally
// inconsistent upstream payload. Not retryable.
type MalformedResponseError struct {
	Network   Network
	StationID string
	Sensor    string
	Reason    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s station %s sensor %s: malformed response: %s",
		e.Network, e.StationID, e.Sensor, e.Reason)
}

// UnknownVariableError reports a sensor code that the active registry
// does not define. A caller configuration mistake; never retried.
type UnknownVariableError struct {
	Network Network
	Code    string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("%s: unknown variable code %q", e.Network, e.Code)
}

// StationError ties one station's failure to its identity so batch
// callers can report per-station outcomes alongside sibling results.
type StationError struct {
	Network   Network
	StationID string
	Err       error
}

func (e *StationError) Error() string {
	return fmt.Sprintf("%s station %s: %v", e.Network, e.StationID, e.Err)
}

func (e *StationError) Unwrap() error { return e.Err }
