package repositories

import (
	"context"
	"time"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	Status    *models.SessionStatus `json:"status"`
	Mode      *models.ExamMode      `json:"mode"`
	UserID    *string               `json:"user_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "completed_at", "score"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type PaymentFilters struct {
	Status *models.PaymentStatus `json:"status"`
	UserID *string               `json:"user_id"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type UserSessionStats struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	AverageScore      float64 `json:"average_score"`
	BestScore         int     `json:"best_score"`
	TotalTimeSpent    int     `json:"total_time_spent"`
}

// ===== DOMAIN REPOSITORIES =====

// UserRepository manages the local profile shadow. Writes come from
// the sync flow and the payment/session flows only.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error

	// DecrementExamsRemaining atomically decrements the free-tier
	// counter, floored at zero, and returns the updated profile.
	DecrementExamsRemaining(ctx context.Context, id string) (*models.User, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
}

// SessionRepository persists exam sessions. Finalized rows are
// write-once: Update refuses to touch a session in a terminal status.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ExamSession) error
	GetByID(ctx context.Context, id string) (*models.ExamSession, error)
	Update(ctx context.Context, session *models.ExamSession) error

	GetActiveByUser(ctx context.Context, userID string) (*models.ExamSession, error)
	List(ctx context.Context, filters SessionFilters) ([]*models.ExamSession, int64, error)
	GetByUser(ctx context.Context, userID string, filters SessionFilters) ([]*models.ExamSession, int64, error)

	GetUserStats(ctx context.Context, userID string) (*UserSessionStats, error)
}

// PaymentRepository persists payment attempts: write-once at
// initiation, updated only by the verification flow.
type PaymentRepository interface {
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	GetByID(ctx context.Context, requestID string) (*models.PaymentAttempt, error)
	UpdateStatus(ctx context.Context, requestID string, status models.PaymentStatus, completedAt *time.Time) error
	GetByUser(ctx context.Context, userID string, filters PaymentFilters) ([]*models.PaymentAttempt, int64, error)
}

// Identity is the confirmed remote identity carried by an
// authentication signal.
type Identity struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

// IdentityRepository reads identities from the identity provider.
// This service never writes identity data.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}
