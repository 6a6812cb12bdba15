package model

import "time"

// ProgressReport is the top-level JSON structure for progress export.
type ProgressReport struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	Sets           []SetReport     `json:"sets"`
	Overview       []ProgressRow   `json:"overview"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// SetReport holds one set's activity history for export.
type SetReport struct {
	Set          Set            `json:"set"`
	Passages     int            `json:"passages"`
	Quizzes      []QuizResult   `json:"quizzes"`
	Sessions     []StudySession `json:"sessions"`
	Interactions []Interaction  `json:"interactions"`
}
