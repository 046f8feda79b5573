package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed fetch request.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed_response"
	KindRateLimited ErrorKind = "rate_limited"
	KindTransport   ErrorKind = "transport"
	KindUnsupported ErrorKind = "unsupported"
)

// Error is a per-request fetch failure. It never aborts a run.
type Error struct {
	Kind     ErrorKind
	SourceID string
	URL      string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	target := e.URL
	if target == "" {
		target = e.SourceID
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch error (%s) for %s: %s: %v", e.Kind, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error (%s) for %s: %s", e.Kind, target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of a fetch error, classifying foreign errors.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// MalformedItem describes one entry dropped from an otherwise usable response.
type MalformedItem struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
}

func (m MalformedItem) Error() string {
	return fmt.Sprintf("malformed item %d from %s: %s", m.Index, m.SourceID, m.Reason)
}
