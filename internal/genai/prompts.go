package genai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

// questionSchema is the structured-output schema the generative call
// must conform to. Required fields match the batch contract: id, type,
// questionText, options, correctAnswer, imagePrompt.
var questionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "type": {"type": "string", "enum": ["READING", "LISTENING"]},
          "category": {"type": "string"},
          "questionText": {"type": "string"},
          "context": {
            "type": "object",
            "properties": {
              "passage": {"type": "string"},
              "dialogue": {"type": "string"},
              "image_url": {"type": "string"}
            }
          },
          "options": {"type": "array", "items": {"type": "string"}, "minItems": 2},
          "correctAnswer": {"type": "integer"},
          "explanation": {"type": "string"},
          "imagePrompt": {"type": "string"},
          "optionImagePrompts": {"type": "array", "items": {"type": "string"}},
          "spokenOptions": {"type": "boolean"}
        },
        "required": ["id", "type", "questionText", "options", "correctAnswer", "imagePrompt"]
      }
    }
  },
  "required": ["questions"]
}`)

func buildQuestionPrompt(req QuestionBatchRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %d EPS-TOPIK practice exam questions for round %d.\n", req.Count, req.SetNumber)

	switch req.Mode {
	case models.ModeReading:
		b.WriteString("All questions must be READING type: vocabulary, grammar, and passage comprehension.\n")
	case models.ModeListening:
		b.WriteString("All questions must be LISTENING type with a dialogue context or spoken-option variant. " +
			"Set spokenOptions to true when the learner must pick the option they hear.\n")
	default:
		b.WriteString("Mix READING and LISTENING types evenly, reading questions first.\n")
	}

	if req.Difficulty != "" {
		fmt.Fprintf(&b, "Target difficulty: %s.\n", req.Difficulty)
	}

	b.WriteString("Each question has exactly 4 answer options in Korean with one correct answer. " +
		"Write dialogue context as alternating lines prefixed with speaker labels (남자:/여자:). " +
		"Provide imagePrompt only when a visual aids the question; leave it empty otherwise.")

	return b.String()
}

var feedbackSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "overall": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "study_plan": {"type": "string"}
  },
  "required": ["overall", "strengths", "weaknesses", "study_plan"]
}`)

func buildFeedbackPrompt(req FeedbackRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "An EPS-TOPIK learner finished a %s practice exam scoring %d out of %d in %d seconds.\n",
		req.Mode, req.Score, req.Total, req.TimeSpent)
	b.WriteString("Per-category results:\n")
	for _, c := range req.Categories {
		fmt.Fprintf(&b, "- %s: %d/%d correct\n", c.Category, c.Correct, c.Total)
	}
	b.WriteString("Write encouraging study feedback in Korean with concrete next steps: " +
		"an overall assessment, strengths, weaknesses, and a one-week study plan.")

	return b.String()
}

// dialogueLine matches a speaker-labelled line such as "남자: ..." or
// "A: ...". Two distinct labels make the text a two-speaker dialogue.
var dialogueLine = regexp.MustCompile(`(?m)^\s*([^:\n]{1,10}):\s`)

// detectDialogueSpeakers extracts the first two distinct speaker labels
// from marked-up dialogue text.
func detectDialogueSpeakers(text string) (string, string, bool) {
	matches := dialogueLine.FindAllStringSubmatch(text, -1)
	if len(matches) < 2 {
		return "", "", false
	}

	first := strings.TrimSpace(matches[0][1])
	for _, m := range matches[1:] {
		second := strings.TrimSpace(m[1])
		if second != first {
			return first, second, true
		}
	}
	return "", "", false
}
