package model

import (
	"encoding/json"
	"time"
)

// SetImport is the JSON structure of a study material import file.
type SetImport struct {
	Name       string           `json:"name"`
	Subject    string           `json:"subject"`
	Grade      string           `json:"grade"`
	Difficulty string           `json:"difficulty"`
	Documents  []DocumentImport `json:"documents"`
	Quizzes    []QuizImport     `json:"quizzes"`
	Sessions   []SessionImport  `json:"sessions"`
}

// DocumentImport is a document with its text already split into passages.
type DocumentImport struct {
	Filename string   `json:"filename"`
	Chunks   []string `json:"chunks"`
}

// QuizImport is a historical quiz result. WeakAreas is either a JSON list of
// strings or a comma-separated string.
type QuizImport struct {
	Topic          string          `json:"topic"`
	Score          float64         `json:"score"`
	TotalQuestions int             `json:"total_questions"`
	CorrectAnswers int             `json:"correct_answers"`
	TimeTaken      int             `json:"time_taken_minutes"`
	WeakAreas      json.RawMessage `json:"weak_areas"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// SessionImport is a historical study session.
type SessionImport struct {
	DurationMinutes int       `json:"duration_minutes"`
	Activities      string    `json:"activities"`
	Notes           string    `json:"notes"`
	SessionDate     time.Time `json:"session_date"`
}

// ImportSummary reports what an import stored.
type ImportSummary struct {
	Path     string `json:"path"`
	SetID    string `json:"set_id,omitempty"`
	Skipped  bool   `json:"skipped"`
	Chunks   int    `json:"chunks"`
	Embedded int    `json:"embedded"`
	Quizzes  int    `json:"quizzes"`
	Sessions int    `json:"sessions"`
}
