package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventProfileCreated EventType = "ProfileCreated"
	EventPostCreated    EventType = "PostCreated"
	EventPostLiked      EventType = "PostLiked"
	EventUserFollowed   EventType = "UserFollowed"
)

// Event is a notification produced by a committed operation.
//
// Actor is the identity that performed the operation. Subject is the identity
// acted upon (the followee for UserFollowed) and PostKey the post involved.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Actor     Identity  `json:"actor"`
	Subject   Identity  `json:"subject,omitempty"`
	PostKey   Key       `json:"postKey,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(typ EventType, actor Identity, at time.Time) Event {
	return Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		Actor:     actor,
		Timestamp: at.Truncate(time.Second),
	}
}

// Sink receives events after the operation producing them committed.
// Delivery is fire-and-forget: the ledger logs a failing Publish and moves on.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Publish(context.Context, ...Event) error { return nil }
