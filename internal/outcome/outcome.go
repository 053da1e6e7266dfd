// Package outcome defines the per-request result record shared by the transport
// client, the dispatcher and the reporting layers.
package outcome

import (
	"fmt"
	"strconv"
	"time"
)

// Kind classifies how a request ended.
type Kind int

const (
	KindSuccess Kind = iota
	KindHTTPError
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindHTTPError:
		return "http_error"
	case KindTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Status is the terminal state of one request.
// Code is set for KindSuccess and KindHTTPError; Reason for KindHTTPError
// (truncated body) and KindTransportError.
type Status struct {
	Kind   Kind
	Code   int
	Reason string
}

// Success builds a successful status for the given 2xx code.
func Success(code int) Status {
	return Status{Kind: KindSuccess, Code: code}
}

// HTTPError builds a protocol failure status.
func HTTPError(code int, body string) Status {
	return Status{Kind: KindHTTPError, Code: code, Reason: body}
}

// TransportError builds a status for connection, timeout or framing failures.
func TransportError(reason string) Status {
	return Status{Kind: KindTransportError, Reason: reason}
}

// Label returns the status bucket label used by metrics, e.g. "200", "500" or
// "TRANSPORT".
func (s Status) Label() string {
	switch s.Kind {
	case KindSuccess, KindHTTPError:
		return strconv.Itoa(s.Code)
	case KindTransportError:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

func (s Status) String() string {
	switch s.Kind {
	case KindSuccess:
		return fmt.Sprintf("SUCCESS(%d)", s.Code)
	case KindHTTPError:
		return fmt.Sprintf("HTTP %d: %s", s.Code, s.Reason)
	case KindTransportError:
		return fmt.Sprintf("TRANSPORT: %s", s.Reason)
	default:
		return "UNKNOWN"
	}
}

// Record is the immutable result of one issued request.
type Record struct {
	RequestID string
	Sequence  int64
	Param     string
	Status    Status
	Elapsed   time.Duration
	Completed time.Time

	// Verified reports whether the response echoed the sent parameter and
	// identifier. Only meaningful when verification was requested.
	Verified bool
	// Mismatch describes the first echo difference when verification failed.
	Mismatch string
}

// OK reports whether the record is a transport-level success.
func (r Record) OK() bool {
	return r.Status.Kind == KindSuccess
}

// Err returns a non-nil error for failed records so callers can feed
// error-oriented sinks (logging, tracing).
func (r Record) Err() error {
	switch r.Status.Kind {
	case KindSuccess:
		return nil
	case KindHTTPError:
		return &HTTPStatusError{StatusCode: r.Status.Code, Body: r.Status.Reason}
	default:
		return &TransportFailure{Reason: r.Status.Reason}
	}
}

// HTTPStatusError represents a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// TransportFailure represents a request that never produced a usable response.
type TransportFailure struct {
	Reason string
}

func (e *TransportFailure) Error() string {
	return "transport: " + e.Reason
}
