package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/studymate/internal/model"

	_ "modernc.org/sqlite"
)

// timeLayout matches the driver's "sqlite" write format so that
// aggregated timestamps, which come back as text, can be parsed.
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		set_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (set_id) REFERENCES sets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		set_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		UNIQUE (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		FOREIGN KEY (set_id) REFERENCES sets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_set ON chunks(set_id);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id TEXT PRIMARY KEY,
		set_id TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		time_taken_minutes INTEGER NOT NULL DEFAULT 0,
		weak_areas TEXT NOT NULL DEFAULT '',
		completed_at DATETIME NOT NULL,
		FOREIGN KEY (set_id) REFERENCES sets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS study_sessions (
		id TEXT PRIMARY KEY,
		set_id TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		activities TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		session_date DATETIME NOT NULL,
		FOREIGN KEY (set_id) REFERENCES sets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS user_interactions (
		id TEXT PRIMARY KEY,
		set_id TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		result_quality REAL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (set_id) REFERENCES sets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSet stores a new set and returns it with its generated ID.
func (s *Store) CreateSet(ctx context.Context, set model.Set) (model.Set, error) {
	set.ID = uuid.NewString()
	set.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sets (id, name, subject, grade, difficulty, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		set.ID, set.Name, set.Subject, set.Grade, set.Difficulty, set.CreatedAt,
	)
	if err != nil {
		return model.Set{}, err
	}
	return set, nil
}

// GetSet returns a set by ID, or sql.ErrNoRows.
func (s *Store) GetSet(ctx context.Context, id string) (model.Set, error) {
	var set model.Set
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, subject, grade, difficulty, created_at FROM sets WHERE id = ?`, id,
	).Scan(&set.ID, &set.Name, &set.Subject, &set.Grade, &set.Difficulty, &set.CreatedAt)
	return set, err
}

// ListSets returns all sets, newest first.
func (s *Store) ListSets(ctx context.Context) ([]model.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, subject, grade, difficulty, created_at FROM sets ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

// UpdateSet renames a set or edits its metadata.
func (s *Store) UpdateSet(ctx context.Context, set model.Set) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sets SET name = ?, subject = ?, grade = ?, difficulty = ? WHERE id = ?`,
		set.Name, set.Subject, set.Grade, set.Difficulty, set.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteSet removes a set together with its documents, chunks and activity.
func (s *Store) DeleteSet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// AddDocument stores a document record under a set.
func (s *Store) AddDocument(ctx context.Context, setID, filename string) (model.Document, error) {
	doc := model.Document{
		ID:        uuid.NewString(),
		SetID:     setID,
		Filename:  filename,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, set_id, filename, created_at) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.SetID, doc.Filename, doc.CreatedAt,
	)
	if err != nil {
		return model.Document{}, err
	}
	return doc, nil
}

// AddChunk stores a chunk of a document. The set ID is copied from the
// document. A nil embedding is stored as NULL.
func (s *Store) AddChunk(ctx context.Context, documentID string, index int, content string, embedding []float32) (string, error) {
	var emb any
	if embedding != nil {
		data, err := json.Marshal(embedding)
		if err != nil {
			return "", fmt.Errorf("encode embedding: %w", err)
		}
		emb = string(data)
	}
	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, set_id, chunk_index, content, embedding)
		 SELECT ?, d.id, d.set_id, ?, ?, ? FROM documents d WHERE d.id = ?`,
		id, index, content, emb, documentID,
	)
	if err != nil {
		return "", err
	}
	if err := expectAffected(res); err != nil {
		return "", err
	}
	return id, nil
}

// SetChunkEmbedding attaches an embedding to an existing chunk.
func (s *Store) SetChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`, string(data), chunkID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanSets(rows *sql.Rows) ([]model.Set, error) {
	var sets []model.Set
	for rows.Next() {
		var set model.Set
		if err := rows.Scan(&set.ID, &set.Name, &set.Subject, &set.Grade, &set.Difficulty, &set.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
