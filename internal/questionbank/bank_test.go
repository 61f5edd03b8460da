package questionbank

import (
	"testing"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

func TestLoadDataset(t *testing.T) {
	questions, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(questions) == 0 {
		t.Fatal("bundled dataset is empty")
	}

	seen := make(map[string]bool)
	for _, q := range questions {
		if !q.Valid() {
			t.Errorf("question %s: correct answer %d out of bounds for %d options",
				q.ID, q.CorrectAnswer, len(q.Options))
		}
		if seen[q.ID] {
			t.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestFallbackNonEmptyForAllModes(t *testing.T) {
	for _, mode := range []models.ExamMode{models.ModeFull, models.ModeReading, models.ModeListening} {
		t.Run(string(mode), func(t *testing.T) {
			questions, err := Fallback(mode, 20)
			if err != nil {
				t.Fatalf("Fallback(%s) error = %v", mode, err)
			}
			if len(questions) == 0 {
				t.Fatalf("Fallback(%s) returned empty list", mode)
			}
			for _, q := range questions {
				if !mode.Includes(q.Type) {
					t.Errorf("question %s has type %s, not allowed in mode %s", q.ID, q.Type, mode)
				}
			}
		})
	}
}

func TestFallbackTruncates(t *testing.T) {
	questions, err := Fallback(models.ModeFull, 3)
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	if len(questions) != 3 {
		t.Errorf("Fallback(count=3) returned %d questions", len(questions))
	}
}

func TestFallbackDeterministic(t *testing.T) {
	first, err := Fallback(models.ModeListening, 20)
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	second, err := Fallback(models.ModeListening, 20)
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d differs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}
