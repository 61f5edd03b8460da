package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionLoading            SessionStatus = "loading"
	SessionAwaitingAudioUnlock SessionStatus = "awaiting_audio_unlock"
	SessionInProgress         SessionStatus = "in_progress"
	SessionSubmitted          SessionStatus = "submitted"
	SessionAbandoned          SessionStatus = "abandoned"
	SessionTimedOut           SessionStatus = "timed_out"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionSubmitted || s == SessionAbandoned || s == SessionTimedOut
}

// ExamSession is one complete attempt at a question set. The question
// list is frozen at creation; the finalized record is write-once after
// submission.
type ExamSession struct {
	ID        string   `json:"id" gorm:"primaryKey;size:64"`
	UserID    string   `json:"user_id" gorm:"not null;index;size:255"`
	Mode      ExamMode `json:"mode" gorm:"not null;size:20"`
	SetNumber int      `json:"set_number" gorm:"not null"`

	Status SessionStatus `json:"status" gorm:"default:in_progress;index;size:30"`

	// Questions is the exact ordered list used, snapshotted as JSON.
	Questions datatypes.JSON `json:"questions" gorm:"type:jsonb"`
	// Answers maps question id -> selected option index. Absent entries
	// are unanswered and score as incorrect.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	TotalQuestions       int `json:"total_questions"`
	CurrentQuestionIndex int `json:"current_question_index"`

	// MediaEpoch increments on every question navigation; media results
	// carrying a stale epoch are discarded instead of rendered.
	MediaEpoch int64 `json:"media_epoch"`

	AudioUnlocked bool `json:"audio_unlocked"`

	// Timing
	StartedAt *time.Time `json:"started_at"`
	EndsAt    *time.Time `json:"ends_at"`
	TimeSpent int        `json:"time_spent"` // seconds

	// Scoring (set at submission)
	Score       int        `json:"score"`
	CompletedAt *time.Time `json:"completed_at"`
	EndReason   *string    `json:"end_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

// QuestionList decodes the frozen question snapshot.
func (s *ExamSession) QuestionList() ([]Question, error) {
	var questions []Question
	if len(s.Questions) == 0 {
		return questions, nil
	}
	if err := json.Unmarshal(s.Questions, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// AnswerMap decodes the question-id -> option-index selections.
func (s *ExamSession) AnswerMap() (map[string]int, error) {
	answers := make(map[string]int)
	if len(s.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(s.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// TimeRemaining returns whole seconds left on the countdown, clamped
// at zero. Expiry does not auto-submit; the timer is advisory.
func (s *ExamSession) TimeRemaining(now time.Time) int {
	if s.EndsAt == nil {
		return 0
	}
	remaining := int(s.EndsAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the countdown budget has run out.
func (s *ExamSession) Expired(now time.Time) bool {
	return s.EndsAt != nil && now.After(*s.EndsAt)
}
