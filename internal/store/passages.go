package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/studymate/internal/model"
)

const passageColumns = `c.id, c.document_id, c.set_id, c.chunk_index, c.content, c.embedding,
	d.filename, s.name, s.subject, s.grade`

const passageJoins = `FROM chunks c
	JOIN documents d ON c.document_id = d.id
	JOIN sets s ON c.set_id = s.id`

// ListEmbeddedPassages returns passages that have an embedding, in storage
// order. An empty setID lists passages of all sets.
func (s *Store) ListEmbeddedPassages(ctx context.Context, setID string) ([]model.Passage, error) {
	query := `SELECT ` + passageColumns + ` ` + passageJoins + ` WHERE c.embedding IS NOT NULL`
	var args []any
	if setID != "" {
		query += ` AND c.set_id = ?`
		args = append(args, setID)
	}
	query += ` ORDER BY c.rowid`
	return s.queryPassages(ctx, query, args...)
}

// ListUnembeddedPassages returns up to limit passages that still lack an
// embedding, in storage order. A limit of zero or less returns all of them.
func (s *Store) ListUnembeddedPassages(ctx context.Context, limit int) ([]model.Passage, error) {
	query := `SELECT ` + passageColumns + ` ` + passageJoins + ` WHERE c.embedding IS NULL ORDER BY c.rowid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryPassages(ctx, query, args...)
}

// ListPassagesBySet returns a set's passages ordered by chunk index.
// A limit of zero or less returns all of them.
func (s *Store) ListPassagesBySet(ctx context.Context, setID string, limit int) ([]model.Passage, error) {
	query := `SELECT ` + passageColumns + ` ` + passageJoins + ` WHERE c.set_id = ? ORDER BY c.chunk_index, c.rowid`
	args := []any{setID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryPassages(ctx, query, args...)
}

// SearchPassages returns passages whose content contains any of the patterns,
// compared case-insensitively as literal substrings.
func (s *Store) SearchPassages(ctx context.Context, patterns []string, setID string, limit int) ([]model.Passage, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	conds := make([]string, len(patterns))
	args := make([]any, 0, len(patterns)+2)
	for i, p := range patterns {
		conds[i] = `c.content LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(p)+"%")
	}
	query := `SELECT ` + passageColumns + ` ` + passageJoins + ` WHERE (` + strings.Join(conds, " OR ") + `)`
	if setID != "" {
		query += ` AND c.set_id = ?`
		args = append(args, setID)
	}
	query += ` ORDER BY c.rowid`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryPassages(ctx, query, args...)
}

// ListRecentSetsWithPassages returns up to limit sets that hold at least one
// chunk, most recently created first.
func (s *Store) ListRecentSetsWithPassages(ctx context.Context, limit int) ([]model.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, s.subject, s.grade, s.difficulty, s.created_at
		 FROM sets s
		 WHERE EXISTS (SELECT 1 FROM chunks c WHERE c.set_id = s.id)
		 ORDER BY s.created_at DESC, s.rowid DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

// CountPassages returns the number of chunks in a set.
func (s *Store) CountPassages(ctx context.Context, setID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE set_id = ?`, setID).Scan(&count)
	return count, err
}

func (s *Store) queryPassages(ctx context.Context, query string, args ...any) ([]model.Passage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var passages []model.Passage
	for rows.Next() {
		var (
			p   model.Passage
			emb sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.SetID, &p.Index, &p.Content, &emb,
			&p.Filename, &p.SetName, &p.Subject, &p.Grade); err != nil {
			return nil, err
		}
		if emb.Valid {
			if err := json.Unmarshal([]byte(emb.String), &p.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding of chunk %s: %w", p.ID, err)
			}
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
