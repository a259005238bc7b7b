package brokerage

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable reports reference data that is missing or corrupt.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrRateUnavailable reports a currency that cannot be converted into the reporting currency.
	ErrRateUnavailable = errors.New("rate unavailable")
	// ErrMalformedPayload reports a broker response that does not match the expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownReportKind reports a kind that has no normaliser or no transport endpoint.
	ErrUnknownReportKind = errors.New("unknown report kind")
)

// TransportError is returned by broker transports when a request cannot be completed:
// network failure, non-2xx HTTP status, or a session response flagged as failed.
type TransportError struct {
	Broker     string // "t212", "xtb"
	Op         string // endpoint or command name
	StatusCode int    // HTTP status, 0 when not applicable
	Code       string // broker error code, if any
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Broker, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP error %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// malformed wraps ErrMalformedPayload with the report kind and a detail message.
func malformed(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedPayload, kind, fmt.Sprintf(format, args...))
}
