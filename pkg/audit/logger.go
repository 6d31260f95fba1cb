// Package audit records the identity service's security event trail:
// logins, logouts, refresh rotations, reuse detections, denials, and
// admin actions on accounts. The trail is append-only JSONL, optionally
// archived to S3 on rotation.
package audit

import (
	"context"
	"time"
)

// Logger records audit events. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NopLogger discards all events. Used when auditing is not configured.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

// MultiLogger fans events out to several loggers. A failing sink does
// not stop the others; the first error is returned.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers into one.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var first error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiLogger) Close() error {
	var first error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}
