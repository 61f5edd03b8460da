package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentAttempt is written once at initiation and updated by the
// verification flow. The current verifier is a simulated stub; the row
// layout matches what a real webhook would update.
type PaymentAttempt struct {
	RequestID string        `json:"request_id" gorm:"primaryKey;size:64"`
	UserID    string        `json:"user_id" gorm:"not null;index;size:255"`
	Plan      PlanTier      `json:"plan" gorm:"not null;size:20"`
	Amount    int64         `json:"amount" gorm:"not null"` // minor currency units
	Status    PaymentStatus `json:"status" gorm:"default:pending;index;size:20"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}

// PlanDuration returns the subscription length a completed payment
// grants.
func PlanDuration(plan PlanTier) time.Duration {
	switch plan {
	case PlanOneMonth:
		return 30 * 24 * time.Hour
	case PlanThreeMonth:
		return 90 * 24 * time.Hour
	case PlanSixMonth:
		return 180 * 24 * time.Hour
	default:
		return 0
	}
}
