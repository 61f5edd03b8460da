package models

type QuestionType string

const (
	QuestionReading   QuestionType = "READING"
	QuestionListening QuestionType = "LISTENING"
)

type ExamMode string

const (
	ModeFull      ExamMode = "full"
	ModeReading   ExamMode = "reading"
	ModeListening ExamMode = "listening"
)

// Includes reports whether questions of the given type belong in an
// exam of this mode.
func (m ExamMode) Includes(t QuestionType) bool {
	switch m {
	case ModeReading:
		return t == QuestionReading
	case ModeListening:
		return t == QuestionListening
	default:
		return true
	}
}

// HasListening reports whether the mode requires audio playback, and
// therefore the audio-unlock gate before the session can progress.
func (m ExamMode) HasListening() bool {
	return m == ModeFull || m == ModeListening
}

// QuestionContext carries the optional stimulus material for a question:
// a literal passage, a two-speaker dialogue transcript, or a reference
// image URL. At most one is set.
type QuestionContext struct {
	Passage  string `json:"passage,omitempty"`
	Dialogue string `json:"dialogue,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Question matches the generative batch schema. Questions are embedded
// as a JSON snapshot in the session row rather than normalized into
// their own table; the exact list used by a session must survive later
// edits to the bank.
type Question struct {
	ID           string           `json:"id" validate:"required"`
	Type         QuestionType     `json:"type" validate:"required,oneof=READING LISTENING"`
	Category     string           `json:"category"`
	QuestionText string           `json:"questionText" validate:"required"`
	Context      *QuestionContext `json:"context,omitempty"`

	Options       []string `json:"options" validate:"required,min=2"`
	CorrectAnswer int      `json:"correctAnswer" validate:"gte=0"`
	Explanation   string   `json:"explanation"`

	// Media generation prompts. Empty means no generated visual.
	ImagePrompt        string   `json:"imagePrompt,omitempty"`
	OptionImagePrompts []string `json:"optionImagePrompts,omitempty"`

	// SpokenOptions marks the "select what you hear among spoken
	// options" listening variant: the synthesized audio reads the
	// question text plus every option instead of the dialogue.
	SpokenOptions bool `json:"spokenOptions,omitempty"`
}

// Valid reports whether the correct-answer index is in bounds.
func (q *Question) Valid() bool {
	return len(q.Options) >= 2 && q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options)
}
