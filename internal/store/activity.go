package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/studymate/internal/model"
)

// AddQuizResult appends a quiz result. Weak areas are stored as a JSON list.
func (s *Store) AddQuizResult(ctx context.Context, in model.QuizInput) (model.QuizResult, error) {
	areas := in.WeakAreas
	if areas == nil {
		areas = []string{}
	}
	data, err := json.Marshal(areas)
	if err != nil {
		return model.QuizResult{}, fmt.Errorf("encode weak areas: %w", err)
	}
	qr := model.QuizResult{
		ID:             uuid.NewString(),
		SetID:          in.SetID,
		Topic:          in.Topic,
		Score:          in.Score,
		TotalQuestions: in.TotalQuestions,
		CorrectAnswers: in.CorrectAnswers,
		TimeTaken:      in.TimeTaken,
		WeakAreas:      string(data),
		CompletedAt:    s.now(),
	}
	return qr, s.insertQuizResult(ctx, qr)
}

// ImportQuizResult stores a quiz result as-is, keeping its raw weak-area
// field and timestamp. It is used for historical data.
func (s *Store) ImportQuizResult(ctx context.Context, qr model.QuizResult) (model.QuizResult, error) {
	if qr.ID == "" {
		qr.ID = uuid.NewString()
	}
	if qr.CompletedAt.IsZero() {
		qr.CompletedAt = s.now()
	}
	return qr, s.insertQuizResult(ctx, qr)
}

func (s *Store) insertQuizResult(ctx context.Context, qr model.QuizResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_results (id, set_id, topic, score, total_questions, correct_answers,
		 time_taken_minutes, weak_areas, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qr.ID, qr.SetID, qr.Topic, qr.Score, qr.TotalQuestions, qr.CorrectAnswers,
		qr.TimeTaken, qr.WeakAreas, qr.CompletedAt.UTC(),
	)
	return err
}

// ListQuizResults returns a set's quiz results, newest first.
func (s *Store) ListQuizResults(ctx context.Context, setID string) ([]model.QuizResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, set_id, topic, score, total_questions, correct_answers, time_taken_minutes,
		 weak_areas, completed_at
		 FROM quiz_results WHERE set_id = ? ORDER BY completed_at DESC, rowid DESC`, setID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		var qr model.QuizResult
		if err := rows.Scan(&qr.ID, &qr.SetID, &qr.Topic, &qr.Score, &qr.TotalQuestions, &qr.CorrectAnswers,
			&qr.TimeTaken, &qr.WeakAreas, &qr.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, qr)
	}
	return results, rows.Err()
}

// AddStudySession appends a study session.
func (s *Store) AddStudySession(ctx context.Context, in model.SessionInput) (model.StudySession, error) {
	ss := model.StudySession{
		ID:              uuid.NewString(),
		SetID:           in.SetID,
		DurationMinutes: in.DurationMinutes,
		Activities:      in.Activities,
		Notes:           in.Notes,
		SessionDate:     s.now(),
	}
	if err := s.insertStudySession(ctx, ss); err != nil {
		return model.StudySession{}, err
	}
	return ss, nil
}

// ImportStudySession stores a historical study session, keeping its date.
func (s *Store) ImportStudySession(ctx context.Context, ss model.StudySession) (model.StudySession, error) {
	if ss.ID == "" {
		ss.ID = uuid.NewString()
	}
	if ss.SessionDate.IsZero() {
		ss.SessionDate = s.now()
	}
	return ss, s.insertStudySession(ctx, ss)
}

func (s *Store) insertStudySession(ctx context.Context, ss model.StudySession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_sessions (id, set_id, duration_minutes, activities, notes, session_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ss.ID, ss.SetID, ss.DurationMinutes, ss.Activities, ss.Notes, ss.SessionDate.UTC(),
	)
	return err
}

// ListStudySessions returns a set's study sessions, newest first.
func (s *Store) ListStudySessions(ctx context.Context, setID string) ([]model.StudySession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, set_id, duration_minutes, activities, notes, session_date
		 FROM study_sessions WHERE set_id = ? ORDER BY session_date DESC, rowid DESC`, setID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.StudySession
	for rows.Next() {
		var ss model.StudySession
		if err := rows.Scan(&ss.ID, &ss.SetID, &ss.DurationMinutes, &ss.Activities, &ss.Notes, &ss.SessionDate); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// AddInteraction appends a user interaction.
func (s *Store) AddInteraction(ctx context.Context, in model.InteractionInput) (model.Interaction, error) {
	it := model.Interaction{
		ID:            uuid.NewString(),
		SetID:         in.SetID,
		Type:          in.Type,
		Query:         in.Query,
		ResultQuality: in.ResultQuality,
		CreatedAt:     s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_interactions (id, set_id, interaction_type, query, result_quality, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.SetID, it.Type, it.Query, it.ResultQuality, it.CreatedAt,
	)
	if err != nil {
		return model.Interaction{}, err
	}
	return it, nil
}

// ListInteractions returns a set's interactions, oldest first.
func (s *Store) ListInteractions(ctx context.Context, setID string) ([]model.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, set_id, interaction_type, query, result_quality, created_at
		 FROM user_interactions WHERE set_id = ? ORDER BY rowid`, setID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Interaction
	for rows.Next() {
		var (
			it      model.Interaction
			quality sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.SetID, &it.Type, &it.Query, &quality, &it.CreatedAt); err != nil {
			return nil, err
		}
		if quality.Valid {
			q := quality.Float64
			it.ResultQuality = &q
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ProgressTotals aggregates study time, scores and counts per set, ordered by
// time spent, most first. Sets without any activity are included with zeros.
func (s *Store) ProgressTotals(ctx context.Context) ([]model.ProgressTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id, s.name, s.subject, s.difficulty,
			COALESCE((SELECT SUM(ss.duration_minutes) FROM study_sessions ss WHERE ss.set_id = s.id), 0) / 60.0 AS time_hours,
			COALESCE((SELECT AVG(qr.score) FROM quiz_results qr WHERE qr.set_id = s.id), 0.0) AS avg_score,
			(SELECT COUNT(*) FROM study_sessions ss WHERE ss.set_id = s.id) AS session_count,
			(SELECT COUNT(*) FROM quiz_results qr WHERE qr.set_id = s.id) AS quiz_count,
			(SELECT MAX(ss.session_date) FROM study_sessions ss WHERE ss.set_id = s.id) AS last_studied
		FROM sets s
		ORDER BY time_hours DESC, s.rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []model.ProgressTotals
	for rows.Next() {
		var (
			t    model.ProgressTotals
			last sql.NullString
		)
		if err := rows.Scan(&t.SetID, &t.Topic, &t.Subject, &t.Difficulty, &t.TimeHours, &t.AvgScore,
			&t.SessionCount, &t.QuizCount, &last); err != nil {
			return nil, err
		}
		if last.Valid && last.String != "" {
			ts, err := parseTime(last.String)
			if err != nil {
				return nil, fmt.Errorf("last studied of set %s: %w", t.SetID, err)
			}
			t.LastStudied = &ts
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
