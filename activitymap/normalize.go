// Package activitymap turns portal session events into a transport agnostic
// activity record for audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"

	portal "github.com/goliatone/go-auth-portal"
)

const (
	// MetadataKeyIdentifier stores the login identifier of the attempt.
	MetadataKeyIdentifier = "identifier"
	// MetadataKeyFailure stores the failure kind of a failed operation.
	MetadataKeyFailure = "failure"
	// MetadataKeyOutcome is "success" or "failure".
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "portal"
	defaultObjectType = "session"
	anonymousActorID  = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts a session event into the normalized shape. Failed
// logins have no user, the identifier stands in as the actor then.
func Normalize(event portal.SessionEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(event.Identifier),
		options.actorFallback,
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when neither a user id nor an
// identifier is known.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Sink returns an activity sink that hands every normalized record to emit.
func Sink(emit func(context.Context, Normalized) error, opts ...Option) portal.ActivitySink {
	return portal.ActivitySinkFunc(func(ctx context.Context, event portal.SessionEvent) error {
		return emit(ctx, Normalize(event, opts...))
	})
}

// LogSink logs normalized records, failures at warn level.
func LogSink(logger portal.Logger, opts ...Option) portal.ActivitySink {
	if logger == nil {
		logger = portal.NopLogger()
	}
	return Sink(func(_ context.Context, n Normalized) error {
		args := []any{
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"channel", n.Channel,
		}
		if n.ObjectID != "" {
			args = append(args, "object_id", n.ObjectID)
		}
		if failure, ok := n.Metadata[MetadataKeyFailure]; ok {
			logger.Warn("activity", append(args, "failure", failure)...)
			return nil
		}
		logger.Info("activity", args...)
		return nil
	}, opts...)
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: anonymousActorID,
	}
}

func normalizeMetadata(event portal.SessionEvent) map[string]any {
	metadata := cloneMap(event.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}

	if id := strings.TrimSpace(event.Identifier); id != "" {
		if _, exists := metadata[MetadataKeyIdentifier]; !exists {
			metadata[MetadataKeyIdentifier] = id
		}
	}

	if event.Failure != portal.FailureNone {
		metadata[MetadataKeyFailure] = string(event.Failure)
		metadata[MetadataKeyOutcome] = "failure"
	} else if event.EventType != portal.SessionEventLogout {
		metadata[MetadataKeyOutcome] = "success"
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
