package services

import (
	"context"

	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

// ===== REQUEST DTOs =====

type StartSessionRequest struct {
	Mode      models.ExamMode `json:"mode" validate:"required,exammode"`
	SetNumber int             `json:"set_number" validate:"required,min=1"`
}

type SelectAnswerRequest struct {
	QuestionID  string `json:"question_id" validate:"required"`
	OptionIndex int    `json:"option_index" validate:"gte=0"`
}

type NavigateRequest struct {
	// Direction is "next" or "previous".
	Direction string `json:"direction" validate:"required,oneof=next previous"`
}

type InitiatePaymentRequest struct {
	Plan models.PlanTier `json:"plan" validate:"required,plantier"`
}

// ===== RESPONSE DTOs =====

// SessionResponse is the session state returned to the client. The
// correct answers stay server-side until the session is finalized:
// Questions carries redacted copies while the session is live.
type SessionResponse struct {
	Session       *models.ExamSession `json:"session"`
	Questions     []models.Question   `json:"questions"`
	Answers       map[string]int      `json:"answers"`
	TimeRemaining int                 `json:"time_remaining"`
}

type ProfileResponse struct {
	User               *models.User `json:"user"`
	SubscriptionActive bool         `json:"subscription_active"`
}

type PaymentResponse struct {
	Attempt *models.PaymentAttempt `json:"attempt"`
}

// MediaImage is a generated raster ready for client rendering.
type MediaImage struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// MediaAudio is a decoded PCM clip: normalized float32 samples per
// channel.
type MediaAudio struct {
	Samples    [][]float32 `json:"samples"`
	SampleRate int         `json:"sample_rate"`
	DurationMs int64       `json:"duration_ms"`
}

// QuestionMedia is the generated media bundle for one question at one
// navigation epoch. Ready flags distinguish "still generating" from
// "generation finished without output".
type QuestionMedia struct {
	QuestionID   string        `json:"question_id"`
	Epoch        int64         `json:"epoch"`
	StemImage    *MediaImage   `json:"stem_image,omitempty"`
	OptionImages []*MediaImage `json:"option_images,omitempty"`
	Audio        *MediaAudio   `json:"audio,omitempty"`
	ImagesReady  bool          `json:"images_ready"`
	AudioReady   bool          `json:"audio_ready"`
}

// ExportResult is a rendered spreadsheet export.
type ExportResult struct {
	FileName string
	Data     []byte
}

// ===== SERVICE INTERFACES =====

// SessionService owns the exam session state machine. All operations
// verify ownership; mutations are rejected once the session reaches a
// terminal status.
type SessionService interface {
	Start(ctx context.Context, userID string, req StartSessionRequest) (*SessionResponse, error)
	Resume(ctx context.Context, userID string) (*SessionResponse, error)
	GetByID(ctx context.Context, userID, sessionID string) (*SessionResponse, error)

	SelectAnswer(ctx context.Context, userID, sessionID string, req SelectAnswerRequest) (*SessionResponse, error)
	Navigate(ctx context.Context, userID, sessionID string, req NavigateRequest) (*SessionResponse, error)
	UnlockAudio(ctx context.Context, userID, sessionID string) (*SessionResponse, error)

	Submit(ctx context.Context, userID, sessionID string) (*SessionResponse, error)
	Abandon(ctx context.Context, userID, sessionID string) error

	GetHistory(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error)
	GetStats(ctx context.Context, userID string) (*repositories.UserSessionStats, error)
}

// QuestionSourceService produces exam question sets: generative first,
// static fallback on any failure.
type QuestionSourceService interface {
	GetQuestionSet(ctx context.Context, mode models.ExamMode, setNumber int, plan models.PlanTier) ([]models.Question, error)
}

// MediaService orchestrates asynchronous media generation for the
// question currently displayed. Results carrying a stale epoch are
// discarded, never rendered.
type MediaService interface {
	// PrepareQuestion kicks off generation for the question at the given
	// index and epoch. Returns immediately; results land via GetMedia.
	PrepareQuestion(ctx context.Context, session *models.ExamSession, index int) error
	GetMedia(ctx context.Context, userID, sessionID string, index int, epoch int64) (*QuestionMedia, error)
	// ReleaseSession drops all in-memory media state for a session.
	ReleaseSession(sessionID string)
}

// ProfileSyncService reconciles the confirmed identity with the local
// profile shadow and keeps it live via the event bus.
type ProfileSyncService interface {
	Sync(ctx context.Context, identity repositories.Identity) (*ProfileResponse, error)
	GetProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	// Run applies remote profile updates as they arrive, until ctx is
	// cancelled. Remote state always wins over optimistic local writes.
	Run(ctx context.Context) error
}

// AnalyticsService generates study feedback for finished sessions.
type AnalyticsService interface {
	GenerateFeedback(ctx context.Context, userID, sessionID string) (*models.AnalyticsFeedback, error)
}

// PaymentService handles the plan purchase flow. Verification is a
// stub: it always succeeds after a fixed delay.
type PaymentService interface {
	Initiate(ctx context.Context, userID string, req InitiatePaymentRequest) (*PaymentResponse, error)
	Verify(ctx context.Context, userID, requestID string) (*ProfileResponse, error)
	GetHistory(ctx context.Context, userID string, filters repositories.PaymentFilters) ([]*models.PaymentAttempt, int64, error)
}

// ExportService renders a user's exam history as a spreadsheet.
type ExportService interface {
	ExportSessions(ctx context.Context, userID string) (*ExportResult, error)
}

// ServiceManager wires and owns all services.
type ServiceManager interface {
	SessionService() SessionService
	QuestionSourceService() QuestionSourceService
	MediaService() MediaService
	ProfileSyncService() ProfileSyncService
	AnalyticsService() AnalyticsService
	PaymentService() PaymentService
	ExportService() ExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
