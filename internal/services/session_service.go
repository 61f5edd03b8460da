package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/events"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
	"github.com/himpower2025/eps-topik-mate/internal/validator"
)

type sessionService struct {
	repo           repositories.Repository
	questionSource QuestionSourceService
	media          MediaService
	publisher      events.EventPublisher
	validator      *validator.Validator
	logger         utils.Logger
	examCfg        config.ExamConfig
	now            func() time.Time
}

func NewSessionService(
	repo repositories.Repository,
	questionSource QuestionSourceService,
	media MediaService,
	publisher events.EventPublisher,
	v *validator.Validator,
	logger utils.Logger,
	examCfg config.ExamConfig,
) SessionService {
	return &sessionService{
		repo:           repo,
		questionSource: questionSource,
		media:          media,
		publisher:      publisher,
		validator:      v,
		logger:         logger,
		examCfg:        examCfg,
		now:            time.Now,
	}
}

// Start creates a new session with a frozen question snapshot. Free-tier
// users need a remaining exam credit; the credit is consumed at
// completion, not here. A user with an unexpired paid plan is unmetered.
func (s *sessionService) Start(ctx context.Context, userID string, req StartSessionRequest) (*SessionResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := s.now()
	metered := !user.SubscriptionActive(now)
	if metered && user.ExamsRemaining <= 0 {
		return nil, ErrNoExamsRemaining
	}

	if _, err := s.repo.Session().GetActiveByUser(ctx, userID); err == nil {
		return nil, ErrActiveSessionExists
	} else if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	questions, err := s.questionSource.GetQuestionSet(ctx, req.Mode, req.SetNumber, user.Plan)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot questions: %w", err)
	}

	session := &models.ExamSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Mode:           req.Mode,
		SetNumber:      req.SetNumber,
		Questions:      datatypes.JSON(snapshot),
		Answers:        datatypes.JSON("{}"),
		TotalQuestions: len(questions),
	}

	// Listening modes wait for the explicit audio-unlock gesture before
	// the countdown starts; reading starts immediately.
	if req.Mode.HasListening() {
		session.Status = models.SessionAwaitingAudioUnlock
	} else {
		s.startClock(session, now)
	}

	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.logger.Info("session started",
		"session_id", session.ID,
		"user_id", userID,
		"mode", req.Mode,
		"set_number", req.SetNumber,
		"questions", len(questions))

	if session.Status == models.SessionInProgress {
		if err := s.media.PrepareQuestion(ctx, session, 0); err != nil {
			s.logger.Warn("media preparation failed", "session_id", session.ID, "error", err)
		}
	}

	return s.buildResponse(session)
}

// Resume returns the caller's active session. An active session whose
// countdown has run out is finalized as timed out instead of resumed.
func (s *sessionService) Resume(ctx context.Context, userID string) (*SessionResponse, error) {
	session, err := s.repo.Session().GetActiveByUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.Status == models.SessionInProgress && session.Expired(s.now()) {
		return s.finalize(ctx, session, models.SessionTimedOut, "timer_expired")
	}

	return s.buildResponse(session)
}

func (s *sessionService) GetByID(ctx context.Context, userID, sessionID string) (*SessionResponse, error) {
	session, err := s.getOwnedSession(ctx, userID, sessionID, "view")
	if err != nil {
		return nil, err
	}
	return s.buildResponse(session)
}

// SelectAnswer records a choice for one question. Selections are
// re-selectable until submission; the countdown is advisory and does
// not block late answers.
func (s *sessionService) SelectAnswer(ctx context.Context, userID, sessionID string, req SelectAnswerRequest) (*SessionResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.getOwnedSession(ctx, userID, sessionID, "answer")
	if err != nil {
		return nil, err
	}
	if err := s.requireInProgress(session); err != nil {
		return nil, err
	}

	questions, err := session.QuestionList()
	if err != nil {
		return nil, err
	}
	question := findQuestion(questions, req.QuestionID)
	if question == nil {
		return nil, ErrInvalidQuestionIndex
	}
	if req.OptionIndex < 0 || req.OptionIndex >= len(question.Options) {
		return nil, ErrInvalidOptionIndex
	}

	answers, err := session.AnswerMap()
	if err != nil {
		return nil, err
	}
	answers[req.QuestionID] = req.OptionIndex

	encoded, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}
	session.Answers = datatypes.JSON(encoded)

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, err
	}

	return s.buildResponse(session)
}

// Navigate moves the cursor one question forward or back, clamped at
// the ends of the list. Every move bumps the media epoch so in-flight
// media for the old question is discarded on arrival.
func (s *sessionService) Navigate(ctx context.Context, userID, sessionID string, req NavigateRequest) (*SessionResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.getOwnedSession(ctx, userID, sessionID, "navigate")
	if err != nil {
		return nil, err
	}
	if err := s.requireInProgress(session); err != nil {
		return nil, err
	}

	index := session.CurrentQuestionIndex
	switch req.Direction {
	case "next":
		index++
	case "previous":
		index--
	}
	// Stepping past either edge is a no-op, not an error.
	if index < 0 || index >= session.TotalQuestions {
		return s.buildResponse(session)
	}

	session.CurrentQuestionIndex = index
	session.MediaEpoch++

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, err
	}

	if err := s.media.PrepareQuestion(ctx, session, index); err != nil {
		s.logger.Warn("media preparation failed", "session_id", session.ID, "error", err)
	}

	return s.buildResponse(session)
}

// UnlockAudio acknowledges the browser audio-unlock gesture and starts
// the countdown for listening-capable sessions.
func (s *sessionService) UnlockAudio(ctx context.Context, userID, sessionID string) (*SessionResponse, error) {
	session, err := s.getOwnedSession(ctx, userID, sessionID, "unlock audio")
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionAwaitingAudioUnlock {
		if session.Status.Terminal() {
			return nil, ErrSessionAlreadyFinalized
		}
		return nil, ErrSessionNotActive
	}

	session.AudioUnlocked = true
	s.startClock(session, s.now())

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, err
	}

	if err := s.media.PrepareQuestion(ctx, session, session.CurrentQuestionIndex); err != nil {
		s.logger.Warn("media preparation failed", "session_id", session.ID, "error", err)
	}

	return s.buildResponse(session)
}

// Submit finalizes the session and scores it. Submission is allowed
// from any question index; unanswered questions score as incorrect.
func (s *sessionService) Submit(ctx context.Context, userID, sessionID string) (*SessionResponse, error) {
	session, err := s.getOwnedSession(ctx, userID, sessionID, "submit")
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, ErrSessionAlreadyFinalized
	}
	return s.finalize(ctx, session, models.SessionSubmitted, "user_submitted")
}

// Abandon ends the session without scoring it against the record.
func (s *sessionService) Abandon(ctx context.Context, userID, sessionID string) error {
	session, err := s.getOwnedSession(ctx, userID, sessionID, "abandon")
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return ErrSessionAlreadyFinalized
	}
	_, err = s.finalize(ctx, session, models.SessionAbandoned, "user_abandoned")
	return err
}

func (s *sessionService) GetHistory(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	return s.repo.Session().GetByUser(ctx, userID, filters)
}

func (s *sessionService) GetStats(ctx context.Context, userID string) (*repositories.UserSessionStats, error) {
	return s.repo.Session().GetUserStats(ctx, userID)
}

// ===== INTERNAL =====

func (s *sessionService) getOwnedSession(ctx context.Context, userID, sessionID, action string) (*models.ExamSession, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, NewPermissionError(userID, sessionID, "session", action, "not owned by user")
	}
	return session, nil
}

func (s *sessionService) requireInProgress(session *models.ExamSession) error {
	switch session.Status {
	case models.SessionInProgress:
		return nil
	case models.SessionAwaitingAudioUnlock:
		return ErrAudioNotUnlocked
	default:
		if session.Status.Terminal() {
			return ErrSessionAlreadyFinalized
		}
		return ErrSessionNotActive
	}
}

func (s *sessionService) startClock(session *models.ExamSession, now time.Time) {
	budget := s.examCfg.SkillExamMinutes
	if session.Mode == models.ModeFull {
		budget = s.examCfg.FullExamMinutes
	}
	endsAt := now.Add(time.Duration(budget) * time.Minute)

	session.Status = models.SessionInProgress
	session.StartedAt = &now
	session.EndsAt = &endsAt
}

// finalize scores the session, stamps the terminal status, and releases
// per-session media state. The update is refused by the repository if
// the row already reached a terminal status. A completion (submit or
// timer expiry) consumes one free-tier exam credit in the same
// transaction that persists the finalized row; abandoned sessions do
// not count against the meter.
func (s *sessionService) finalize(ctx context.Context, session *models.ExamSession, status models.SessionStatus, reason string) (*SessionResponse, error) {
	questions, err := session.QuestionList()
	if err != nil {
		return nil, err
	}
	answers, err := session.AnswerMap()
	if err != nil {
		return nil, err
	}

	now := s.now()
	completedAt := now
	session.Status = status
	session.Score = computeScore(questions, answers)
	session.CompletedAt = &completedAt
	session.EndReason = &reason
	session.TimeSpent = timeSpent(session, now)

	completed := status == models.SessionSubmitted || status == models.SessionTimedOut

	var debited *models.User
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Session().Update(ctx, session); err != nil {
			return err
		}
		if !completed {
			return nil
		}
		user, err := tx.User().GetByID(ctx, session.UserID)
		if err != nil {
			return err
		}
		if user.SubscriptionActive(now) {
			return nil
		}
		debited, err = tx.User().DecrementExamsRemaining(ctx, session.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.media.ReleaseSession(session.ID)

	if debited != nil {
		s.publishProfileUpdated(ctx, debited)
	}

	if completed {
		event, err := events.NewEvent(events.EventSessionCompleted, events.SessionCompletedPayload{
			SessionID:      session.ID,
			UserID:         session.UserID,
			Mode:           session.Mode,
			SetNumber:      session.SetNumber,
			Score:          session.Score,
			TotalQuestions: session.TotalQuestions,
			EndReason:      reason,
		})
		if err == nil {
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Warn("failed to publish session completed event", "session_id", session.ID, "error", err)
			}
		}
	}

	s.logger.Info("session finalized",
		"session_id", session.ID,
		"user_id", session.UserID,
		"status", status,
		"score", session.Score,
		"total", session.TotalQuestions)

	return s.buildResponse(session)
}

func (s *sessionService) publishProfileUpdated(ctx context.Context, user *models.User) {
	event, err := events.NewEvent(events.EventProfileUpdated, events.ProfileUpdatedPayload{
		UserID:             user.ID,
		Plan:               user.Plan,
		SubscriptionExpiry: user.SubscriptionExpiry,
		ExamsRemaining:     user.ExamsRemaining,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish profile updated event", "user_id", user.ID, "error", err)
	}
}

// buildResponse assembles the client view. Correct answers and
// explanations stay server-side until the session is finalized.
func (s *sessionService) buildResponse(session *models.ExamSession) (*SessionResponse, error) {
	questions, err := session.QuestionList()
	if err != nil {
		return nil, err
	}
	answers, err := session.AnswerMap()
	if err != nil {
		return nil, err
	}

	if !session.Status.Terminal() {
		questions = redactQuestions(questions)
	}

	return &SessionResponse{
		Session:       session,
		Questions:     questions,
		Answers:       answers,
		TimeRemaining: session.TimeRemaining(s.now()),
	}, nil
}

func redactQuestions(questions []models.Question) []models.Question {
	redacted := make([]models.Question, len(questions))
	for i, q := range questions {
		q.CorrectAnswer = -1
		q.Explanation = ""
		redacted[i] = q
	}
	return redacted
}

func findQuestion(questions []models.Question, id string) *models.Question {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i]
		}
	}
	return nil
}

func computeScore(questions []models.Question, answers map[string]int) int {
	score := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			score++
		}
	}
	return score
}

func timeSpent(session *models.ExamSession, now time.Time) int {
	if session.StartedAt == nil {
		return 0
	}
	spent := int(now.Sub(*session.StartedAt).Seconds())
	if spent < 0 {
		return 0
	}
	if session.EndsAt != nil {
		budget := int(session.EndsAt.Sub(*session.StartedAt).Seconds())
		if spent > budget {
			return budget
		}
	}
	return spent
}
