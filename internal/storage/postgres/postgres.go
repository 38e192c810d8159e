// Package postgres implements storage.Store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/storage"
)

//go:embed schema.sql
var schema string

type Config struct {
	Addr string
	User string
	Pass string
	Name string
}

type Store struct {
	db *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Connect opens a pool, checks connectivity and applies the schema.
func Connect(ctx context.Context, c Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM quizzes ORDER BY id;`)
	if err != nil {
		return nil, errors.Unavailable(err, "list quizzes")
	}

	quizzes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Quiz])
	if err != nil {
		return nil, errors.Unavailable(err, "list quizzes")
	}

	return quizzes, nil
}

func (s *Store) QuestionsFor(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := s.db.Query(ctx, `SELECT quiz_id, prompt, answer FROM questions WHERE quiz_id = $1 ORDER BY id;`, quizID)
	if err != nil {
		return nil, errors.Unavailable(err, "list questions: quiz=%d", quizID)
	}

	questions, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Question])
	if err != nil {
		return nil, errors.Unavailable(err, "list questions: quiz=%d", quizID)
	}

	return questions, nil
}

func (s *Store) SampleRandom(ctx context.Context, n int) ([]domain.Question, error) {
	rows, err := s.db.Query(ctx, `SELECT quiz_id, prompt, answer FROM questions ORDER BY random() LIMIT $1;`, n)
	if err != nil {
		return nil, errors.Unavailable(err, "sample questions: n=%d", n)
	}

	questions, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Question])
	if err != nil {
		return nil, errors.Unavailable(err, "sample questions: n=%d", n)
	}

	return questions, nil
}

func (s *Store) BestScore(ctx context.Context, player domain.PlayerID, quizID int64) (int, bool, error) {
	var score int
	err := s.db.QueryRow(ctx, `SELECT score FROM scores WHERE player_id = $1 AND quiz_id = $2;`, player, quizID).Scan(&score)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Unavailable(err, "best score: player=%d quiz=%d", player, quizID)
	}

	return score, true, nil
}

// UpsertIfGreater is a single statement: the row lock taken by ON CONFLICT serializes
// concurrent writers of the same (player, quiz).
func (s *Store) UpsertIfGreater(ctx context.Context, rec domain.ScoreRecord) (bool, error) {
	const stmt = `
INSERT INTO scores (player_id, username, quiz_id, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (player_id, quiz_id) DO UPDATE
SET score = EXCLUDED.score, username = EXCLUDED.username, update_time = now()
WHERE scores.score < EXCLUDED.score
RETURNING score;`

	var score int
	err := s.db.QueryRow(ctx, stmt, rec.PlayerID, rec.Username, rec.QuizID, rec.Score).Scan(&score)
	if stderrors.Is(err, pgx.ErrNoRows) {
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
ORDER BY s.id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, errors.Unavailable(err, "list scores")
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ScoreRecord, error) {
		var rec domain.ScoreRecord
		err := r.Scan(&rec.PlayerID, &rec.Username, &rec.QuizID, &rec.QuizName, &rec.Score, &rec.TotalQuestions)
		return rec, err
	})
	if err != nil {
		return nil, errors.Unavailable(err, "list scores")
	}

	return records, nil
}

func (s *Store) ClearScores(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM scores;`)
	return errors.Unavailable(err, "clear scores")
}

func (s *Store) Seed(ctx context.Context, quizzes []storage.SeedQuiz) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insQuizStmt = `
INSERT INTO quizzes (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id;`
		insQuestionStmt = `
INSERT INTO questions (quiz_id, prompt, answer) VALUES ($1, $2, $3)
ON CONFLICT (prompt) DO NOTHING;`
	)

	for _, q := range quizzes {
		var id int64
		if err = tx.QueryRow(ctx, insQuizStmt, q.Name).Scan(&id); err != nil {
			return fmt.Errorf("insert quiz %q: %w", q.Name, err)
		}

		b := new(pgx.Batch)
		for _, qq := range q.Questions {
			b.Queue(insQuestionStmt, id, qq.Prompt, qq.Answer)
		}
		if err = tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert questions of %q: %w", q.Name, err)
		}
	}

	return tx.Commit(ctx)
}
