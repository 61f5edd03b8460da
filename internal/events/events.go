package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

type EventType string

const (
	// EventProfileUpdated fires whenever a user profile document
	// changes (sync write, admin promotion, payment upgrade). The
	// in-process live subscription consumes it to keep local snapshots
	// consistent without a reload.
	EventProfileUpdated EventType = "profile.updated"

	// EventSessionCompleted fires after a finalized session is
	// persisted.
	EventSessionCompleted EventType = "session.completed"

	EventPaymentCompleted EventType = "payment.completed"
)

// Event is the envelope published on every topic.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type ProfileUpdatedPayload struct {
	UserID             string          `json:"user_id"`
	Plan               models.PlanTier `json:"plan"`
	SubscriptionExpiry *time.Time      `json:"subscription_expiry"`
	ExamsRemaining     int             `json:"exams_remaining"`
}

type SessionCompletedPayload struct {
	SessionID      string          `json:"session_id"`
	UserID         string          `json:"user_id"`
	Mode           models.ExamMode `json:"mode"`
	SetNumber      int             `json:"set_number"`
	Score          int             `json:"score"`
	TotalQuestions int             `json:"total_questions"`
	EndReason      string          `json:"end_reason"`
}

type PaymentCompletedPayload struct {
	RequestID string          `json:"request_id"`
	UserID    string          `json:"user_id"`
	Plan      models.PlanTier `json:"plan"`
	Amount    int64           `json:"amount"`
}

// NewEvent wraps a payload in an envelope with a fresh id.
func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// EventSubscriber delivers events of one type as they are published.
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType EventType) (<-chan *Event, error)
}
