package services

import (
	"context"
	"sort"

	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type analyticsService struct {
	repo   repositories.Repository
	client genai.Client
	logger utils.Logger
}

func NewAnalyticsService(repo repositories.Repository, client genai.Client, logger utils.Logger) AnalyticsService {
	return &analyticsService{
		repo:   repo,
		client: client,
		logger: logger,
	}
}

// GenerateFeedback produces study feedback for a finalized session.
// The feedback is derived on demand and never persisted; a generation
// failure degrades to an explicit unavailable error rather than a
// canned response.
func (s *analyticsService) GenerateFeedback(ctx context.Context, userID, sessionID string) (*models.AnalyticsFeedback, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, NewPermissionError(userID, sessionID, "session", "analyze", "not owned by user")
	}
	if !session.Status.Terminal() {
		return nil, ErrSessionNotActive
	}

	questions, err := session.QuestionList()
	if err != nil {
		return nil, err
	}
	answers, err := session.AnswerMap()
	if err != nil {
		return nil, err
	}

	feedback, err := s.client.GenerateFeedback(ctx, genai.FeedbackRequest{
		Mode:       session.Mode,
		Score:      session.Score,
		Total:      session.TotalQuestions,
		TimeSpent:  session.TimeSpent,
		Categories: summarizeCategories(questions, answers),
	})
	if err != nil {
		s.logger.Warn("feedback generation failed",
			"session_id", sessionID, "user_id", userID, "error", err)
		return nil, ErrFeedbackUnavailable
	}

	return feedback, nil
}

// summarizeCategories aggregates correct counts per question category,
// in stable order.
func summarizeCategories(questions []models.Question, answers map[string]int) []genai.CategoryResult {
	byCategory := make(map[string]*genai.CategoryResult)
	for _, q := range questions {
		category := q.Category
		if category == "" {
			category = string(q.Type)
		}
		result, ok := byCategory[category]
		if !ok {
			result = &genai.CategoryResult{Category: category}
			byCategory[category] = result
		}
		result.Total++
		if selected, answered := answers[q.ID]; answered && selected == q.CorrectAnswer {
			result.Correct++
		}
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]genai.CategoryResult, 0, len(names))
	for _, name := range names {
		results = append(results, *byCategory[name])
	}
	return results
}
