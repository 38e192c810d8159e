// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/storage"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection turns lock contention into queueing.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM quizzes ORDER BY id`)
	if err != nil {
		return nil, errors.Unavailable(err, "list quizzes")
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.QuizID, &q.Name); err != nil {
			return nil, errors.Unavailable(err, "list quizzes")
		}
		quizzes = append(quizzes, q)
	}

	return quizzes, errors.Unavailable(rows.Err(), "list quizzes")
}

func (s *Store) QuestionsFor(ctx context.Context, quizID int64) ([]domain.Question, error) {
	questions, err := s.queryQuestions(ctx, `SELECT quiz_id, prompt, answer FROM questions WHERE quiz_id = ? ORDER BY id`, quizID)
	if err != nil {
		return nil, errors.Unavailable(err, "list questions: quiz=%d", quizID)
	}
	return questions, nil
}

func (s *Store) SampleRandom(ctx context.Context, n int) ([]domain.Question, error) {
	questions, err := s.queryQuestions(ctx, `SELECT quiz_id, prompt, answer FROM questions ORDER BY RANDOM() LIMIT ?`, n)
	if err != nil {
		return nil, errors.Unavailable(err, "sample questions: n=%d", n)
	}
	return questions, nil
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...any) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.QuizID, &q.Prompt, &q.Answer); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

func (s *Store) BestScore(ctx context.Context, player domain.PlayerID, quizID int64) (int, bool, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `SELECT score FROM scores WHERE player_id = ? AND quiz_id = ?`, int64(player), quizID).Scan(&score)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Unavailable(err, "best score: player=%d quiz=%d", player, quizID)
	}

	return score, true, nil
}

func (s *Store) UpsertIfGreater(ctx context.Context, rec domain.ScoreRecord) (bool, error) {
	const stmt = `
INSERT INTO scores (player_id, username, quiz_id, score, update_time)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player_id, quiz_id) DO UPDATE
SET score = excluded.score, username = excluded.username, update_time = excluded.update_time
WHERE scores.score < excluded.score
RETURNING score`

	var score int
	err := s.db.QueryRowContext(ctx, stmt, int64(rec.PlayerID), rec.Username, rec.QuizID, rec.Score, time.Now().UnixMilli()).Scan(&score)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Unavailable(err, "upsert score: player=%d quiz=%d", rec.PlayerID, rec.QuizID)
	}

	return true, nil
}

func (s *Store) ListRecords(ctx context.Context) ([]domain.ScoreRecord, error) {
	const stmt = `
SELECT s.player_id, s.username, s.quiz_id, q.name, s.score,
       (SELECT COUNT(*) FROM questions WHERE quiz_id = s.quiz_id) AS total_questions
FROM scores s
JOIN quizzes q ON q.id = s.quiz_id
ORDER BY s.id`

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errors.Unavailable(err, "list scores")
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var (
			rec    domain.ScoreRecord
			player int64
		)
		if err := rows.Scan(&player, &rec.Username, &rec.QuizID, &rec.QuizName, &rec.Score, &rec.TotalQuestions); err != nil {
			return nil, errors.Unavailable(err, "list scores")
		}
		rec.PlayerID = domain.PlayerID(player)
		records = append(records, rec)
	}

	return records, errors.Unavailable(rows.Err(), "list scores")
}

func (s *Store) ClearScores(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scores`)
	return errors.Unavailable(err, "clear scores")
}

func (s *Store) Seed(ctx context.Context, quizzes []storage.SeedQuiz) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback())
		}
	}()

	for _, q := range quizzes {
		var id int64
		err = tx.QueryRowContext(ctx, `
INSERT INTO quizzes (name) VALUES (?)
ON CONFLICT (name) DO UPDATE SET name = excluded.name
RETURNING id`, q.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert quiz %q: %w", q.Name, err)
		}

		for _, qq := range q.Questions {
			_, err = tx.ExecContext(ctx, `INSERT INTO questions (quiz_id, prompt, answer) VALUES (?, ?, ?) ON CONFLICT (prompt) DO NOTHING`,
				id, qq.Prompt, qq.Answer)
			if err != nil {
				return fmt.Errorf("insert question %q: %w", qq.Prompt, err)
			}
		}
	}

	return tx.Commit()
}
