package activitymap

import (
	"strings"
	"time"

	"github.com/foodly/authsync"
)

const (
	// MetadataKeyRole stores the role the event is scoped to.
	MetadataKeyRole = "role"
	// MetadataKeyOperation stores the provider operation that caused the change.
	MetadataKeyOperation = "operation"
	// MetadataKeyFromPhase stores the phase before the change.
	MetadataKeyFromPhase = "from_phase"
	// MetadataKeyToPhase stores the phase after the change.
	MetadataKeyToPhase = "to_phase"
	// MetadataKeyEventID stores the id of the source event.
	MetadataKeyEventID = "event_id"
)

const (
	defaultChannel    = "authsync"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
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
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(authsync.ChangeEvent) string
	clock            func() time.Time
}

// Normalize converts an authsync.ChangeEvent into a generic normalized shape.
// Signed out events carry no identity, their actor is the fallback.
func Normalize(event authsync.ChangeEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		identityID(event.Identity),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.clock().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ChangeEvent.
func WithObjectIDResolver(resolver func(authsync.ChangeEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no identity.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		clock:         time.Now,
	}
}

func resolveObjectID(event authsync.ChangeEvent, resolver func(authsync.ChangeEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return identityID(event.Identity)
}

func normalizeMetadata(event authsync.ChangeEvent) map[string]any {
	metadata := map[string]any{}

	if event.ID != "" {
		metadata[MetadataKeyEventID] = event.ID
	}
	if event.Role != "" {
		metadata[MetadataKeyRole] = string(event.Role)
	}
	if event.Op != "" {
		metadata[MetadataKeyOperation] = string(event.Op)
	}
	if event.From.Name != "" {
		metadata[MetadataKeyFromPhase] = event.From.String()
	}
	if event.To.Name != "" {
		metadata[MetadataKeyToPhase] = event.To.String()
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func identityID(identity *authsync.Identity) string {
	if identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.ID)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
