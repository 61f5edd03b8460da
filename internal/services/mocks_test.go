package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

func newTestLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testExamConfig() config.ExamConfig {
	return config.ExamConfig{
		QuestionsPerSet:     3,
		FullExamMinutes:     50,
		SkillExamMinutes:    25,
		AdminEmail:          "admin@example.com",
		FreeExamCount:       3,
		SpokenOptionMarkers: []string{"들리는", "select what you hear"},
	}
}

func testQuestions() []models.Question {
	return []models.Question{
		{
			ID:            "q-1",
			Type:          models.QuestionReading,
			Category:      "vocabulary",
			QuestionText:  "다음 단어의 의미로 맞는 것을 고르십시오: 안전모",
			Options:       []string{"safety helmet", "gloves", "boots", "vest"},
			CorrectAnswer: 0,
			Explanation:   "안전모 means safety helmet.",
		},
		{
			ID:            "q-2",
			Type:          models.QuestionListening,
			Category:      "dialogue",
			QuestionText:  "대화를 듣고 질문에 답하십시오.",
			Context:       &models.QuestionContext{Dialogue: "남자: 내일 몇 시에 출근해요?\n여자: 아침 여덟 시요."},
			Options:       []string{"일곱 시", "여덟 시", "아홉 시", "열 시"},
			CorrectAnswer: 1,
		},
		{
			ID:            "q-3",
			Type:          models.QuestionListening,
			Category:      "spoken-options",
			QuestionText:  "들리는 것을 고르십시오.",
			Options:       []string{"공장", "공항", "공원", "공책"},
			CorrectAnswer: 2,
			SpokenOptions: true,
		},
	}
}

func mustSnapshot(questions []models.Question) datatypes.JSON {
	data, err := json.Marshal(questions)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(data)
}

func mustAnswers(answers map[string]int) datatypes.JSON {
	data, err := json.Marshal(answers)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(data)
}

// ===== IN-MEMORY REPOSITORY =====

type mockRepository struct {
	users    *mockUserRepo
	sessions *mockSessionRepo
	payments *mockPaymentRepo
	identity *mockIdentityRepo
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:    &mockUserRepo{users: make(map[string]*models.User)},
		sessions: &mockSessionRepo{sessions: make(map[string]*models.ExamSession)},
		payments: &mockPaymentRepo{attempts: make(map[string]*models.PaymentAttempt)},
		identity: &mockIdentityRepo{identities: make(map[string]*repositories.Identity)},
	}
}

func (r *mockRepository) User() repositories.UserRepository         { return r.users }
func (r *mockRepository) Session() repositories.SessionRepository   { return r.sessions }
func (r *mockRepository) Payment() repositories.PaymentRepository   { return r.payments }
func (r *mockRepository) Identity() repositories.IdentityRepository { return r.identity }

func (r *mockRepository) WithTransaction(_ context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *mockRepository) Ping(_ context.Context) error { return nil }
func (r *mockRepository) Close() error                 { return nil }

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	// getGate, when set, blocks GetByID until the channel is closed.
	getGate chan struct{}
}

func (r *mockUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	if r.getGate != nil {
		<-r.getGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *mockUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) DecrementExamsRemaining(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if user.ExamsRemaining > 0 {
		user.ExamsRemaining--
	}
	copied := *user
	return &copied, nil
}

func (r *mockUserRepo) ExistsByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.ExamSession
}

func (r *mockSessionRepo) Create(_ context.Context, session *models.ExamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	copied.CreatedAt = time.Now()
	r.sessions[session.ID] = &copied
	return nil
}

func (r *mockSessionRepo) GetByID(_ context.Context, id string) (*models.ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *mockSessionRepo) Update(_ context.Context, session *models.ExamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Status.Terminal() {
		return errors.New("session is finalized and immutable")
	}
	copied := *session
	copied.CreatedAt = stored.CreatedAt
	r.sessions[session.ID] = &copied
	return nil
}

func (r *mockSessionRepo) GetActiveByUser(_ context.Context, userID string) (*models.ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.ExamSession
	for _, session := range r.sessions {
		if session.UserID != userID {
			continue
		}
		if session.Status != models.SessionAwaitingAudioUnlock && session.Status != models.SessionInProgress {
			continue
		}
		if latest == nil || session.CreatedAt.After(latest.CreatedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *mockSessionRepo) List(_ context.Context, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ExamSession
	for _, session := range r.sessions {
		if filters.UserID != nil && session.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		copied := *session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *mockSessionRepo) GetByUser(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	filters.UserID = &userID
	return r.List(ctx, filters)
}

func (r *mockSessionRepo) GetUserStats(_ context.Context, userID string) (*repositories.UserSessionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.UserSessionStats{}
	scoreSum := 0
	for _, session := range r.sessions {
		if session.UserID != userID {
			continue
		}
		stats.TotalSessions++
		stats.TotalTimeSpent += session.TimeSpent
		if session.Status == models.SessionSubmitted {
			stats.CompletedSessions++
			scoreSum += session.Score
			if session.Score > stats.BestScore {
				stats.BestScore = session.Score
			}
		}
	}
	if stats.CompletedSessions > 0 {
		stats.AverageScore = float64(scoreSum) / float64(stats.CompletedSessions)
	}
	return stats, nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	attempts map[string]*models.PaymentAttempt
}

func (r *mockPaymentRepo) Create(_ context.Context, attempt *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *attempt
	copied.CreatedAt = time.Now()
	r.attempts[attempt.RequestID] = &copied
	return nil
}

func (r *mockPaymentRepo) GetByID(_ context.Context, requestID string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[requestID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (r *mockPaymentRepo) UpdateStatus(_ context.Context, requestID string, status models.PaymentStatus, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[requestID]
	if !ok {
		return repositories.ErrNotFound
	}
	attempt.Status = status
	attempt.CompletedAt = completedAt
	return nil
}

func (r *mockPaymentRepo) GetByUser(_ context.Context, userID string, filters repositories.PaymentFilters) ([]*models.PaymentAttempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentAttempt
	for _, attempt := range r.attempts {
		if attempt.UserID != userID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		copied := *attempt
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

type mockIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*repositories.Identity
}

func (r *mockIdentityRepo) GetByID(_ context.Context, id string) (*repositories.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (r *mockIdentityRepo) GetByEmail(_ context.Context, email string) (*repositories.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, identity := range r.identities {
		if identity.Email == email {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockIdentityRepo) ExistsByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.identities[id]
	return ok, nil
}

// ===== GENERATIVE CLIENT MOCK =====

type mockGenAIClient struct {
	mu sync.Mutex

	questions    []models.Question
	questionsErr error

	imageErr   error
	imageCalls []string

	speechErr   error
	speechCalls []string
	// speechGate, when set, blocks GenerateSpeech until closed.
	speechGate chan struct{}

	feedback    *models.AnalyticsFeedback
	feedbackErr error
}

var _ genai.Client = (*mockGenAIClient)(nil)

func (c *mockGenAIClient) GenerateQuestions(_ context.Context, _ genai.QuestionBatchRequest) ([]models.Question, error) {
	if c.questionsErr != nil {
		return nil, c.questionsErr
	}
	return c.questions, nil
}

func (c *mockGenAIClient) GenerateImage(_ context.Context, prompt string) (*genai.Image, error) {
	c.mu.Lock()
	c.imageCalls = append(c.imageCalls, prompt)
	c.mu.Unlock()
	if c.imageErr != nil {
		return nil, c.imageErr
	}
	return &genai.Image{Data: []byte("png:" + prompt), MimeType: "image/png"}, nil
}

func (c *mockGenAIClient) GenerateSpeech(_ context.Context, req genai.SpeechRequest) (*genai.AudioClip, error) {
	if c.speechGate != nil {
		<-c.speechGate
	}
	c.mu.Lock()
	c.speechCalls = append(c.speechCalls, req.Text)
	c.mu.Unlock()
	if c.speechErr != nil {
		return nil, c.speechErr
	}
	return &genai.AudioClip{
		Channels:   [][]float32{{0.0, 0.5, -0.5}},
		SampleRate: 24000,
	}, nil
}

func (c *mockGenAIClient) GenerateFeedback(_ context.Context, _ genai.FeedbackRequest) (*models.AnalyticsFeedback, error) {
	if c.feedbackErr != nil {
		return nil, c.feedbackErr
	}
	return c.feedback, nil
}

func (c *mockGenAIClient) imageCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.imageCalls)
}

func (c *mockGenAIClient) speechTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.speechCalls))
	copy(out, c.speechCalls)
	return out
}

// ===== SERVICE MOCKS =====

type mockQuestionSource struct {
	questions []models.Question
	err       error
}

func (s *mockQuestionSource) GetQuestionSet(_ context.Context, _ models.ExamMode, _ int, _ models.PlanTier) ([]models.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.questions, nil
}

type preparedCall struct {
	sessionID string
	index     int
	epoch     int64
}

type mockMediaService struct {
	mu       sync.Mutex
	prepared []preparedCall
	released []string
}

func (s *mockMediaService) PrepareQuestion(_ context.Context, session *models.ExamSession, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared = append(s.prepared, preparedCall{
		sessionID: session.ID,
		index:     index,
		epoch:     session.MediaEpoch,
	})
	return nil
}

func (s *mockMediaService) GetMedia(_ context.Context, _, _ string, _ int, _ int64) (*QuestionMedia, error) {
	return nil, ErrMediaNotReady
}

func (s *mockMediaService) ReleaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, sessionID)
}

func (s *mockMediaService) preparedCalls() []preparedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]preparedCall, len(s.prepared))
	copy(out, s.prepared)
	return out
}

func (s *mockMediaService) releasedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.released))
	copy(out, s.released)
	return out
}
