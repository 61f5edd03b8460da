package models

import (
	"time"

	"gorm.io/gorm"
)

type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanOneMonth   PlanTier = "1-month"
	PlanThreeMonth PlanTier = "3-month"
	PlanSixMonth   PlanTier = "6-month"
)

// IsPaid reports whether the plan grants unmetered exam access.
func (p PlanTier) IsPaid() bool {
	return p != "" && p != PlanFree
}

// User is the local shadow of the remote profile document. The remote
// store is the source of truth; live subscription updates always win
// over optimistic local writes.
type User struct {
	ID       string `json:"id" gorm:"primaryKey;size:255"`
	FullName string `json:"full_name" gorm:"not null;size:100"`
	Email    string `json:"email" gorm:"uniqueIndex;not null;size:255"`

	// Profile info
	AvatarURL *string `json:"avatar_url" gorm:"size:500"`

	// Subscription
	Plan               PlanTier   `json:"plan" gorm:"default:free;size:20"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry"` // nil for free plan
	ExamsRemaining     int        `json:"exams_remaining"`     // meaningful only when Plan == free

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// SubscriptionActive reports whether a paid plan is still within its
// expiry window at the given instant.
func (u *User) SubscriptionActive(now time.Time) bool {
	if !u.Plan.IsPaid() {
		return false
	}
	if u.SubscriptionExpiry == nil {
		return false
	}
	return now.Before(*u.SubscriptionExpiry)
}
