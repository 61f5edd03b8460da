package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/models"
)

func submittedSession(id, userID string, answers map[string]int) *models.ExamSession {
	reason := "user_submitted"
	return &models.ExamSession{
		ID:             id,
		UserID:         userID,
		Mode:           models.ModeFull,
		Status:         models.SessionSubmitted,
		Questions:      mustSnapshot(testQuestions()),
		Answers:        mustAnswers(answers),
		TotalQuestions: 3,
		Score:          computeScore(testQuestions(), answers),
		TimeSpent:      1200,
		EndReason:      &reason,
	}
}

func TestGenerateFeedback(t *testing.T) {
	repo := newMockRepository()
	client := &mockGenAIClient{
		feedback: &models.AnalyticsFeedback{
			Overall:   "좋은 출발입니다.",
			StudyPlan: "매일 듣기 연습 30분.",
		},
	}
	svc := NewAnalyticsService(repo, client, newTestLogger())

	repo.sessions.sessions["session-1"] = submittedSession("session-1", "user-1", map[string]int{"q-1": 0})

	feedback, err := svc.GenerateFeedback(context.Background(), "user-1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, "좋은 출발입니다.", feedback.Overall)
}

func TestGenerateFeedback_RequiresFinalizedSession(t *testing.T) {
	repo := newMockRepository()
	svc := NewAnalyticsService(repo, &mockGenAIClient{}, newTestLogger())

	session := submittedSession("session-1", "user-1", nil)
	session.Status = models.SessionInProgress
	repo.sessions.sessions["session-1"] = session

	_, err := svc.GenerateFeedback(context.Background(), "user-1", "session-1")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestGenerateFeedback_Ownership(t *testing.T) {
	repo := newMockRepository()
	svc := NewAnalyticsService(repo, &mockGenAIClient{}, newTestLogger())
	repo.sessions.sessions["session-1"] = submittedSession("session-1", "user-1", nil)

	_, err := svc.GenerateFeedback(context.Background(), "user-2", "session-1")
	assert.True(t, IsPermissionError(err))
}

func TestGenerateFeedback_DegradesOnGenerationFailure(t *testing.T) {
	repo := newMockRepository()
	client := &mockGenAIClient{feedbackErr: errors.New("model overloaded")}
	svc := NewAnalyticsService(repo, client, newTestLogger())
	repo.sessions.sessions["session-1"] = submittedSession("session-1", "user-1", nil)

	_, err := svc.GenerateFeedback(context.Background(), "user-1", "session-1")
	assert.ErrorIs(t, err, ErrFeedbackUnavailable)
}

func TestSummarizeCategories(t *testing.T) {
	questions := testQuestions()
	answers := map[string]int{
		"q-1": 0, // correct, vocabulary
		"q-2": 0, // wrong, dialogue
		// q-3 unanswered, spoken-options
	}

	results := summarizeCategories(questions, answers)
	require.Len(t, results, 3)

	byName := make(map[string]genai.CategoryResult)
	for _, r := range results {
		byName[r.Category] = r
	}
	assert.Equal(t, genai.CategoryResult{Category: "vocabulary", Correct: 1, Total: 1}, byName["vocabulary"])
	assert.Equal(t, genai.CategoryResult{Category: "dialogue", Correct: 0, Total: 1}, byName["dialogue"])
	assert.Equal(t, genai.CategoryResult{Category: "spoken-options", Correct: 0, Total: 1}, byName["spoken-options"])
}
