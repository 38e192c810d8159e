// Package storagetest holds the behaviour every storage.Store implementation must satisfy.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/storage"
)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("seed is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Seed(ctx, storage.DefaultQuizzes))
		require.NoError(t, s.Seed(ctx, storage.DefaultQuizzes))

		quizzes, err := s.ListQuizzes(ctx)
		require.NoError(t, err)
		require.Len(t, quizzes, len(storage.DefaultQuizzes))

		for i, q := range quizzes {
			assert.Equal(t, storage.DefaultQuizzes[i].Name, q.Name)

			questions, err := s.QuestionsFor(ctx, q.QuizID)
			require.NoError(t, err)
			assert.Len(t, questions, len(storage.DefaultQuizzes[i].Questions))
		}
	})

	t.Run("questions of unknown quiz are empty", func(t *testing.T) {
		s := newStore(t)

		questions, err := s.QuestionsFor(context.Background(), 404)
		require.NoError(t, err)
		assert.Empty(t, questions)
	})

	t.Run("sample random tolerates short supply", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Seed(ctx, []storage.SeedQuiz{capitals}))

		questions, err := s.SampleRandom(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, questions, 2)

		questions, err = s.SampleRandom(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, questions, 1)
	})

	t.Run("upsert keeps the best score only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		quiz := seedOne(t, s, capitals)

		_, ok, err := s.BestScore(ctx, 1, quiz.QuizID)
		require.NoError(t, err)
		assert.False(t, ok)

		steps := []struct {
			score       int
			wantUpdated bool
			wantBest    int
		}{
			{score: 1, wantUpdated: true, wantBest: 1},
			{score: 0, wantUpdated: false, wantBest: 1},
			{score: 1, wantUpdated: false, wantBest: 1},
			{score: 2, wantUpdated: true, wantBest: 2},
		}

		for _, st := range steps {
			updated, err := s.UpsertIfGreater(ctx, domain.ScoreRecord{PlayerID: 1, Username: "alice", QuizID: quiz.QuizID, Score: st.score})
			require.NoError(t, err)
			assert.Equal(t, st.wantUpdated, updated, "score %d", st.score)

			best, ok, err := s.BestScore(ctx, 1, quiz.QuizID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, st.wantBest, best)
		}

		records, err := s.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1, "there must be one record per (player, quiz)")
		assert.Equal(t, domain.ScoreRecord{
			PlayerID:       1,
			Username:       "alice",
			QuizID:         quiz.QuizID,
			QuizName:       capitals.Name,
			Score:          2,
			TotalQuestions: 2,
		}, records[0])
	})

	t.Run("concurrent upserts end with the maximum", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		quiz := seedOne(t, s, capitals)

		var wg sync.WaitGroup
		for score := 0; score < 20; score++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpsertIfGreater(ctx, domain.ScoreRecord{PlayerID: 7, QuizID: quiz.QuizID, Score: score})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		best, ok, err := s.BestScore(ctx, 7, quiz.QuizID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 19, best)

		records, err := s.ListRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("records are listed in insertion order and cleared", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Seed(ctx, storage.DefaultQuizzes))
		quizzes, err := s.ListQuizzes(ctx)
		require.NoError(t, err)

		for _, rec := range []domain.ScoreRecord{
			{PlayerID: 2, Username: "bob", QuizID: quizzes[1].QuizID, Score: 3},
			{PlayerID: 1, Username: "alice", QuizID: quizzes[0].QuizID, Score: 5},
			{PlayerID: 2, Username: "bob", QuizID: quizzes[0].QuizID, Score: 1},
		} {
			_, err := s.UpsertIfGreater(ctx, rec)
			require.NoError(t, err)
		}
		// Improving an existing record keeps its position.
		_, err = s.UpsertIfGreater(ctx, domain.ScoreRecord{PlayerID: 2, Username: "bob", QuizID: quizzes[1].QuizID, Score: 4})
		require.NoError(t, err)

		records, err := s.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []int{4, 5, 1}, []int{records[0].Score, records[1].Score, records[2].Score})
		assert.Equal(t, quizzes[1].Name, records[0].QuizName)
		assert.Equal(t, len(storage.DefaultQuizzes[1].Questions), records[0].TotalQuestions)

		require.NoError(t, s.ClearScores(ctx))
		records, err = s.ListRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

var capitals = storage.SeedQuiz{
	Name: "Capitals",
	Questions: []storage.SeedQuestion{
		{Prompt: "Capital of France?", Answer: "Paris"},
		{Prompt: "Capital of Japan?", Answer: "Tokyo"},
	},
}

func seedOne(t *testing.T, s storage.Store, q storage.SeedQuiz) domain.Quiz {
	require.NoError(t, s.Seed(context.Background(), []storage.SeedQuiz{q}))

	quizzes, err := s.ListQuizzes(context.Background())
	require.NoError(t, err)
	for _, qz := range quizzes {
		if qz.Name == q.Name {
			return qz
		}
	}

	t.Fatalf("quiz %q not found after seeding", q.Name)
	return domain.Quiz{}
}
