package models

// AnalyticsFeedback is the qualitative feedback generated for a
// completed session. Derived per session and returned to the caller;
// never persisted by the core flow.
type AnalyticsFeedback struct {
	Overall    string   `json:"overall"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	StudyPlan  string   `json:"study_plan"`
}
