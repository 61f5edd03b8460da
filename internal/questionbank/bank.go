package questionbank

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

//go:embed questions.json
var bundledQuestions []byte

var (
	loadOnce sync.Once
	loaded   []models.Question
	loadErr  error
)

// Load decodes the bundled dataset. The dataset ships in the binary so
// the fallback path never depends on I/O.
func Load() ([]models.Question, error) {
	loadOnce.Do(func() {
		loadErr = json.Unmarshal(bundledQuestions, &loaded)
		if loadErr != nil {
			loadErr = fmt.Errorf("decode bundled question dataset: %w", loadErr)
		}
	})
	return loaded, loadErr
}

// Filter returns the bundled questions matching the given mode, in
// dataset order.
func Filter(mode models.ExamMode) ([]models.Question, error) {
	all, err := Load()
	if err != nil {
		return nil, err
	}

	out := make([]models.Question, 0, len(all))
	for _, q := range all {
		if mode.Includes(q.Type) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Fallback returns a deterministic, mode-filtered list capped at count.
// It backs the question source when the generative call fails and must
// stay non-empty for every supported mode.
func Fallback(mode models.ExamMode, count int) ([]models.Question, error) {
	filtered, err := Filter(mode)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("bundled dataset has no questions for mode %s", mode)
	}
	if count > 0 && len(filtered) > count {
		filtered = filtered[:count]
	}

	out := make([]models.Question, len(filtered))
	copy(out, filtered)
	return out, nil
}
