package domain

const (
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardCleared = "leaderboard.cleared"
	EventNameMatchFinished      = "match.finished"
)

// EventScoreUpdated is published when a player's best score on a quiz has increased.
type EventScoreUpdated struct {
	Record ScoreRecord
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardCleared struct{}

func (EventLeaderboardCleared) Name() string { return EventNameLeaderboardCleared }

// MatchOutcome is how a PvP match ended.
type MatchOutcome string

const (
	MatchOutcomeWin     MatchOutcome = "win"
	MatchOutcomeDraw    MatchOutcome = "draw"
	MatchOutcomeAborted MatchOutcome = "aborted"
)

type EventMatchFinished struct {
	MatchID string
	Players [2]Player
	Scores  [2]int
	Outcome MatchOutcome
}

func (EventMatchFinished) Name() string { return EventNameMatchFinished }
