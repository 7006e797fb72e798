package portal

import (
	"context"
	"time"
)

// SessionEventType enumerates session lifecycle events.
type SessionEventType string

const (
	SessionEventRestoreSuccess  SessionEventType = "session.restore.success"
	SessionEventRestoreFailure  SessionEventType = "session.restore.failure"
	SessionEventLoginSuccess    SessionEventType = "session.login.success"
	SessionEventLoginFailure    SessionEventType = "session.login.failure"
	SessionEventRegisterSuccess SessionEventType = "session.register.success"
	SessionEventRegisterFailure SessionEventType = "session.register.failure"
	SessionEventLogout          SessionEventType = "session.logout"
)

// SessionEvent captures audit friendly information about a settled operation.
type SessionEvent struct {
	EventType  SessionEventType
	UserID     string
	Identifier string
	Failure    FailureKind
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes session events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event SessionEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event SessionEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event SessionEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, SessionEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
