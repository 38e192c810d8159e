package session

import (
	"fmt"

	"github.com/victornm/trivia/internal/domain"
)

const (
	textCorrect        = "Correct!"
	textWrong          = "Wrong!"
	textEmptyQuiz      = "This quiz has no questions."
	textApology        = "Something went wrong, please try again later."
	textPlayAgain      = "Play again?"
	textAlreadyQueued  = "You are already in the PvP queue."
	textAlreadyInMatch = "You are already playing a PvP match."
	textQueued         = "You have joined the PvP queue. Please wait for a second player."
	textLeftQueue      = "You have left the PvP queue."
	textNotQueued      = "You are not in the PvP queue."
	textTooEarly       = "Wait for the question."
	textAlreadyWon     = "The round was already won by the other player."
	textRoundOver      = "This round is over, wait for the next question."
	textNoPvPQuestions = "There are no questions for a PvP match yet. The match is cancelled."
	textMatchAborted   = "The match was aborted."
	textMatchOver      = "The match is over."
)

func textSummary(score, total int) string {
	return fmt.Sprintf("Quiz finished! Your score: %d of %d.", score, total)
}

func textMatchStarting(opponent domain.Player) string {
	return fmt.Sprintf("The PvP quiz is starting. You are playing against %s!", opponent.DisplayName())
}

func textMatchRules(delay int) string {
	return fmt.Sprintf("The quiz starts in %d seconds. Whoever answers more questions correctly first wins.", delay)
}

func textCountdown(n int) string {
	return fmt.Sprintf("Next question in %d...", n)
}

func textOpponentScored(winner domain.Player) string {
	return fmt.Sprintf("%s answered correctly!", winner.DisplayName())
}

func textTimeUp(answer string) string {
	return fmt.Sprintf("Time is up! The answer was: %s", answer)
}

func textOpponentLeft(opponent domain.Player) string {
	return fmt.Sprintf("%s left the match. The match was aborted.", opponent.DisplayName())
}

// textMatchResult reports the outcome to one player, own score first.
func textMatchResult(own, other int, opponent domain.Player) string {
	switch {
	case own > other:
		return fmt.Sprintf("Quiz finished! You won! (%d vs %d)", own, other)
	case own < other:
		return fmt.Sprintf("Quiz finished! The winner is %s (%d vs %d)", opponent.DisplayName(), own, other)
	default:
		return fmt.Sprintf("Quiz finished! It's a draw (%d vs %d)", own, other)
	}
}

func playAgainOptions(quizID int64) []domain.Option {
	return []domain.Option{
		{Label: "Play again", Action: domain.Action{Kind: domain.ActionReplayQuiz, QuizID: quizID}},
		{Label: "Another quiz", Action: domain.Action{Kind: domain.ActionChooseQuiz}},
	}
}

func modeOptions() []domain.Option {
	return []domain.Option{
		{Label: "Single player", Action: domain.Action{Kind: domain.ActionModeSingle}},
		{Label: "PvP", Action: domain.Action{Kind: domain.ActionModePvP}},
	}
}

func leaveQueueOptions() []domain.Option {
	return []domain.Option{
		{Label: "Leave the queue", Action: domain.Action{Kind: domain.ActionLeaveQueue}},
	}
}
