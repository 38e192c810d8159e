package score

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/lock"
)

// Ledger persists one best-score record per (player, quiz).
type Ledger interface {
	BestScore(ctx context.Context, player domain.PlayerID, quizID int64) (int, bool, error)
	UpsertIfGreater(ctx context.Context, rec domain.ScoreRecord) (bool, error)
	ListRecords(ctx context.Context) ([]domain.ScoreRecord, error)
	ClearScores(ctx context.Context) error
}

type Config struct {
	EventBus *event.Bus
	Ledger   Ledger
}

type Service struct {
	eb     *event.Bus
	ledger Ledger

	keys lock.Keyed[recordKey]
}

type recordKey struct {
	player domain.PlayerID
	quiz   int64
}

func NewService(c Config) *Service {
	return &Service{
		eb:     c.EventBus,
		ledger: c.Ledger,
	}
}

type SaveBestScoreRequest struct {
	Player domain.Player
	QuizID int64
	Score  int
}

type SaveBestScoreResponse struct {
	// Best is the best score after the call.
	Best int
	// Updated is true when this score became the new best.
	Updated bool
}

// SaveBestScore keeps max(previous best, score) for the player on the quiz.
// Calls for the same (player, quiz) are serialized in-process; the ledger's
// conditional upsert provides the same guarantee across processes.
func (s *Service) SaveBestScore(ctx context.Context, req SaveBestScoreRequest) (*SaveBestScoreResponse, error) {
	unlock := s.keys.Lock(recordKey{player: req.Player.ID, quiz: req.QuizID})
	defer unlock()

	prev, ok, err := s.ledger.BestScore(ctx, req.Player.ID, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("save best score: %w", err)
	}

	if ok && req.Score <= prev {
		return &SaveBestScoreResponse{Best: prev}, nil
	}

	rec := domain.ScoreRecord{
		PlayerID: req.Player.ID,
		Username: req.Player.Name,
		QuizID:   req.QuizID,
		Score:    req.Score,
	}

	updated, err := s.ledger.UpsertIfGreater(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save best score: %w", err)
	}

	if !updated {
		// Another process wrote a better score since our read.
		best, _, err := s.ledger.BestScore(ctx, req.Player.ID, req.QuizID)
		if err != nil {
			return nil, fmt.Errorf("save best score: %w", err)
		}
		return &SaveBestScoreResponse{Best: best}, nil
	}

	slog.InfoContext(ctx, "score: best score updated",
		"player", req.Player.ID,
		"quiz", req.QuizID,
		"score", req.Score,
	)

	s.eb.Publish(ctx, domain.EventScoreUpdated{Record: rec})

	return &SaveBestScoreResponse{Best: req.Score, Updated: true}, nil
}

// BestScore returns the player's best score on the quiz; ok is false when the player never finished it.
func (s *Service) BestScore(ctx context.Context, player domain.PlayerID, quizID int64) (score int, ok bool, err error) {
	return s.ledger.BestScore(ctx, player, quizID)
}

// ListRecords returns every best-score record in insertion order.
func (s *Service) ListRecords(ctx context.Context) ([]domain.ScoreRecord, error) {
	return s.ledger.ListRecords(ctx)
}

// Clear removes all records from the ledger.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.ledger.ClearScores(ctx); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}

	slog.InfoContext(ctx, "score: leaderboard cleared")
	s.eb.Publish(ctx, domain.EventLeaderboardCleared{})
	return nil
}
