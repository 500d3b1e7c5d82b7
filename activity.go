package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates the notifications this module emits.
type ActivityEventType string

const (
	ActivityEventUserCreated          ActivityEventType = "user.created"
	ActivityEventUserUpdated          ActivityEventType = "user.updated"
	ActivityEventPasswordChanged      ActivityEventType = "password.changed"
	ActivityEventPasswordResetRequest ActivityEventType = "password.reset_requested"
	ActivityEventCheckRequested       ActivityEventType = "token.check_requested"
	ActivityEventCheckConfirmed       ActivityEventType = "token.check_confirmed"

	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventSSOLogin             ActivityEventType = "auth.sso.login"
	ActivityEventRefresh              ActivityEventType = "auth.session.refresh"
	ActivityEventLogout               ActivityEventType = "auth.session.logout"
	ActivityEventImpersonationSuccess ActivityEventType = "auth.impersonation.success"
	ActivityEventImpersonationFailure ActivityEventType = "auth.impersonation.failure"
)

// ActorRef identifies who performed an action.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

// ActivityEvent captures audit-friendly information about an action. Events
// carry enough payload for downstream delivery (email, SMS); this module
// never performs delivery itself.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing and delivery fan-out.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// emitActivity records an event and logs sink failures without surfacing
// them to the caller. A failed notification never fails the action that
// already succeeded.
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("activity sink record error: %v", err)
	}
}
