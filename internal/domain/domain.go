package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PlayerID identifies a player on the chat transport, e.g. a Telegram chat id.
type PlayerID int64

// Player is the identity of a participant together with the display name reported by the transport.
type Player struct {
	ID   PlayerID
	Name string
}

// DisplayName returns the player's name, falling back to a placeholder when the transport has none.
func (p Player) DisplayName() string {
	if p.Name == "" {
		return "None"
	}
	return p.Name
}

// Quiz is a named set of questions.
type Quiz struct {
	QuizID int64
	Name   string
}

type Question struct {
	QuizID int64
	Prompt string
	Answer string
}

// Accepts reports whether text matches the expected answer. Comparison ignores letter case only.
func (q Question) Accepts(text string) bool {
	return strings.EqualFold(text, q.Answer)
}

// ScoreRecord is the best score of a player on a quiz. There is at most one record per (player, quiz).
type ScoreRecord struct {
	PlayerID PlayerID
	Username string
	QuizID   int64
	Score    int

	// QuizName and TotalQuestions are filled when records are listed for ranking.
	QuizName       string
	TotalQuestions int
}

// Leaderboard is the ranked view of the best results, one entry per player.
// Entries are sorted by score in descending order.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank           int
	PlayerID       PlayerID
	Username       string
	QuizName       string
	Score          int
	TotalQuestions int
	Percentage     decimal.Decimal
}
