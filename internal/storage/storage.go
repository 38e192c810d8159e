// Package storage defines the persistence contract shared by the Postgres and SQLite backends.
package storage

import (
	"context"

	"github.com/victornm/trivia/internal/domain"
)

// Store is the question store and score ledger. Errors are reported as
// errors.ErrStorageUnavailable.
type Store interface {
	// ListQuizzes returns every quiz ordered by id.
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	// QuestionsFor returns all questions of a quiz in an unspecified order.
	QuestionsFor(ctx context.Context, quizID int64) ([]domain.Question, error)
	// SampleRandom returns up to n random questions drawn across all quizzes.
	SampleRandom(ctx context.Context, n int) ([]domain.Question, error)

	// BestScore returns the best score of a player on a quiz, ok is false when there is none.
	BestScore(ctx context.Context, player domain.PlayerID, quizID int64) (score int, ok bool, err error)
	// UpsertIfGreater stores the record when no record exists or the new score is strictly greater.
	UpsertIfGreater(ctx context.Context, rec domain.ScoreRecord) (updated bool, err error)
	// ListRecords returns all records in insertion order, joined with quiz name and question count.
	ListRecords(ctx context.Context) ([]domain.ScoreRecord, error)
	// ClearScores deletes every record.
	ClearScores(ctx context.Context) error

	// Seed inserts quizzes and questions that do not exist yet.
	Seed(ctx context.Context, quizzes []SeedQuiz) error
	Close() error
}

type SeedQuiz struct {
	Name      string
	Questions []SeedQuestion
}

type SeedQuestion struct {
	Prompt string
	Answer string
}

// DefaultQuizzes is the catalogue installed on first start.
var DefaultQuizzes = []SeedQuiz{
	{
		Name: "Capitals",
		Questions: []SeedQuestion{
			{"Capital of France?", "Paris"},
			{"Capital of Iceland?", "Reykjavik"},
			{"Capital of Germany?", "Berlin"},
			{"Capital of Spain?", "Madrid"},
			{"Capital of Belarus?", "Minsk"},
			{"Capital of Italy?", "Rome"},
		},
	},
	{
		Name: "Animals",
		Questions: []SeedQuestion{
			{"The largest land animal is?", "Elephant"},
			{"The slowest animal is?", "Sloth"},
			{"The largest sea animal is?", "Blue whale"},
			{"The fastest land animal is?", "Cheetah"},
		},
	},
	{
		Name: "Armored vehicles",
		Questions: []SeedQuestion{
			{"The best-known Soviet medium tank of World War II? {with a hyphen}", "T-34"},
			{"The heaviest tank ever built in metal?", "Maus"},
			{"Which class of armored vehicle does the Ferdinand belong to?", "Tank destroyer"},
			{"Series of Soviet heavy tanks named after the first Marshal of the USSR?", "KV"},
		},
	},
	{
		Name: "Plants",
		Questions: []SeedQuestion{
			{"Which plant grows the tallest?", "Sequoia"},
			{"Which conifer sheds its needles for the winter?", "Larch"},
			{"Which plant is a predator?", "Sundew"},
			{"Which plant is the symbol of Canada?", "Maple"},
			{"Which flower was depicted on the coat of arms of royal France?", "Lily"},
		},
	},
}
