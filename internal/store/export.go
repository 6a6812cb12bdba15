package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/studymate/internal/model"
)

// ExportSets builds export-ready activity histories for all sets.
func (s *Store) ExportSets(ctx context.Context) ([]model.SetReport, error) {
	sets, err := s.ListSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	reports := make([]model.SetReport, 0, len(sets))
	for _, set := range sets {
		passages, err := s.CountPassages(ctx, set.ID)
		if err != nil {
			return nil, fmt.Errorf("count passages of set %s: %w", set.ID, err)
		}
		quizzes, err := s.ListQuizResults(ctx, set.ID)
		if err != nil {
			return nil, fmt.Errorf("quiz results of set %s: %w", set.ID, err)
		}
		sessions, err := s.ListStudySessions(ctx, set.ID)
		if err != nil {
			return nil, fmt.Errorf("study sessions of set %s: %w", set.ID, err)
		}
		interactions, err := s.ListInteractions(ctx, set.ID)
		if err != nil {
			return nil, fmt.Errorf("interactions of set %s: %w", set.ID, err)
		}
		if quizzes == nil {
			quizzes = []model.QuizResult{}
		}
		if sessions == nil {
			sessions = []model.StudySession{}
		}
		if interactions == nil {
			interactions = []model.Interaction{}
		}
		reports = append(reports, model.SetReport{
			Set:          set,
			Passages:     passages,
			Quizzes:      quizzes,
			Sessions:     sessions,
			Interactions: interactions,
		})
	}
	return reports, nil
}
