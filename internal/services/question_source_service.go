package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/questionbank"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
	"github.com/himpower2025/eps-topik-mate/internal/validator"
)

type questionSourceService struct {
	client       genai.Client
	cacheManager *cache.CacheManager
	validator    *validator.Validator
	logger       utils.Logger
	examCfg      config.ExamConfig
}

func NewQuestionSourceService(
	client genai.Client,
	cacheManager *cache.CacheManager,
	v *validator.Validator,
	logger utils.Logger,
	examCfg config.ExamConfig,
) QuestionSourceService {
	return &questionSourceService{
		client:       client,
		cacheManager: cacheManager,
		validator:    v,
		logger:       logger,
		examCfg:      examCfg,
	}
}

// GetQuestionSet obtains the question list for one exam: generated
// content first, the embedded static bank on any failure. A session can
// always start; only an empty fallback is a hard error.
func (s *questionSourceService) GetQuestionSet(ctx context.Context, mode models.ExamMode, setNumber int, plan models.PlanTier) ([]models.Question, error) {
	cacheKey := fmt.Sprintf("%s:%d:%s", mode, setNumber, difficultyFor(plan))

	var questions []models.Question
	err := s.cacheManager.QuestionSet.CacheOrExecute(ctx, cacheKey, &questions, cache.QuestionSetCacheConfig.TTL, func() (interface{}, error) {
		generated, err := s.generate(ctx, mode, setNumber, plan)
		if err != nil {
			return nil, err
		}
		return generated, nil
	})
	if err == nil && len(questions) > 0 {
		return questions, nil
	}

	if err != nil {
		s.logger.Warn("question generation failed, using static fallback",
			"mode", mode,
			"set_number", setNumber,
			"error", err)
	}

	fallback, err := questionbank.Fallback(mode, s.examCfg.QuestionsPerSet)
	if err != nil {
		return nil, ErrQuestionSetUnavailable
	}
	return fallback, nil
}

func (s *questionSourceService) generate(ctx context.Context, mode models.ExamMode, setNumber int, plan models.PlanTier) ([]models.Question, error) {
	batch, err := s.client.GenerateQuestions(ctx, genai.QuestionBatchRequest{
		Mode:       mode,
		SetNumber:  setNumber,
		Count:      s.examCfg.QuestionsPerSet,
		Difficulty: difficultyFor(plan),
	})
	if err != nil {
		return nil, err
	}

	accepted := make([]models.Question, 0, s.examCfg.QuestionsPerSet)
	for _, q := range batch {
		if err := s.validator.ValidateQuestion(&q); err != nil {
			s.logger.Debug("dropping malformed generated question", "question_id", q.ID, "error", err)
			continue
		}
		// Skill-specific exams must stay pure: a stray question of the
		// other type is dropped, not kept.
		if !mode.Includes(q.Type) {
			continue
		}
		applySpokenOptionsFallback(&q, s.examCfg.SpokenOptionMarkers)
		accepted = append(accepted, q)
		if len(accepted) == s.examCfg.QuestionsPerSet {
			break
		}
	}

	if len(accepted) == 0 {
		return nil, fmt.Errorf("generated batch had no usable questions")
	}
	if len(accepted) < s.examCfg.QuestionsPerSet {
		accepted = s.padFromBank(mode, accepted)
	}
	return accepted, nil
}

// padFromBank tops a short generated set up to the target count with
// bank questions, skipping ids already present.
func (s *questionSourceService) padFromBank(mode models.ExamMode, questions []models.Question) []models.Question {
	bank, err := questionbank.Filter(mode)
	if err != nil {
		s.logger.Warn("could not pad short question set from bank", "error", err)
		return questions
	}

	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		seen[q.ID] = struct{}{}
	}
	for _, q := range bank {
		if len(questions) == s.examCfg.QuestionsPerSet {
			break
		}
		if _, ok := seen[q.ID]; ok {
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// applySpokenOptionsFallback infers the spoken-options listening
// variant from marker phrases when the generated question omits the
// explicit flag.
func applySpokenOptionsFallback(q *models.Question, markers []string) {
	if q.SpokenOptions || q.Type != models.QuestionListening {
		return
	}
	for _, marker := range markers {
		if marker != "" && strings.Contains(q.QuestionText, marker) {
			q.SpokenOptions = true
			return
		}
	}
}

func difficultyFor(plan models.PlanTier) string {
	if plan.IsPaid() {
		return "advanced"
	}
	return "standard"
}
