package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/validator"
)

func newQuestionSourceService(client *mockGenAIClient) *questionSourceService {
	return NewQuestionSourceService(
		client,
		cache.NewCacheManager(nil),
		validator.New(),
		newTestLogger(),
		testExamConfig(),
	).(*questionSourceService)
}

func TestGetQuestionSet_Generated(t *testing.T) {
	client := &mockGenAIClient{questions: testQuestions()}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeFull, 1, models.PlanFree)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "q-1", questions[0].ID)
}

func TestGetQuestionSet_ListeningStaysPure(t *testing.T) {
	// Generated batch contains a stray reading question.
	client := &mockGenAIClient{questions: testQuestions()}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeListening, 1, models.PlanFree)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for _, q := range questions {
		assert.Equal(t, models.QuestionListening, q.Type)
	}
}

func TestGetQuestionSet_DropsMalformedQuestions(t *testing.T) {
	batch := testQuestions()
	batch[0].CorrectAnswer = 17 // out of bounds
	client := &mockGenAIClient{questions: batch}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeFull, 1, models.PlanFree)
	require.NoError(t, err)
	for _, q := range questions {
		assert.NotEqual(t, "q-1", q.ID)
	}
}

func TestGetQuestionSet_SpokenOptionsHeuristic(t *testing.T) {
	batch := testQuestions()
	batch[2].SpokenOptions = false // flag dropped by the generator
	client := &mockGenAIClient{questions: batch}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeListening, 1, models.PlanFree)
	require.NoError(t, err)

	var spoken *models.Question
	for i := range questions {
		if questions[i].ID == "q-3" {
			spoken = &questions[i]
		}
	}
	require.NotNil(t, spoken)
	// "들리는" in the question text marks the spoken-options variant.
	assert.True(t, spoken.SpokenOptions)
}

func TestGetQuestionSet_TruncatesToTargetCount(t *testing.T) {
	var batch []models.Question
	for i := 0; i < 5; i++ {
		q := testQuestions()[0]
		q.ID = q.ID + string(rune('a'+i))
		batch = append(batch, q)
	}
	client := &mockGenAIClient{questions: batch}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeReading, 1, models.PlanFree)
	require.NoError(t, err)
	assert.Len(t, questions, 3)
}

func TestGetQuestionSet_PadsShortBatchFromBank(t *testing.T) {
	// Only one generated question survives validation; the set is
	// topped up from the static bank.
	client := &mockGenAIClient{questions: []models.Question{testQuestions()[0]}}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeReading, 1, models.PlanFree)
	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.Equal(t, "q-1", questions[0].ID)
	for _, q := range questions[1:] {
		assert.Equal(t, models.QuestionReading, q.Type)
		assert.True(t, q.Valid())
	}
}

func TestGetQuestionSet_FallsBackOnGenerationFailure(t *testing.T) {
	client := &mockGenAIClient{questionsErr: errors.New("model overloaded")}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeReading, 1, models.PlanFree)
	require.NoError(t, err)
	require.NotEmpty(t, questions)
	for _, q := range questions {
		assert.Equal(t, models.QuestionReading, q.Type)
		assert.True(t, q.Valid())
	}
}

func TestGetQuestionSet_FallsBackWhenNothingUsable(t *testing.T) {
	// Every generated question is the wrong type for the mode.
	client := &mockGenAIClient{questions: []models.Question{testQuestions()[0]}}
	svc := newQuestionSourceService(client)

	questions, err := svc.GetQuestionSet(context.Background(), models.ModeListening, 1, models.PlanFree)
	require.NoError(t, err)
	require.NotEmpty(t, questions)
	for _, q := range questions {
		assert.Equal(t, models.QuestionListening, q.Type)
	}
}

func TestDifficultyScalesWithPlan(t *testing.T) {
	assert.Equal(t, "standard", difficultyFor(models.PlanFree))
	assert.Equal(t, "advanced", difficultyFor(models.PlanThreeMonth))
}
