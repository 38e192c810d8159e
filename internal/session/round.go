package session

// phase is the state of the current PvP round.
type phase int

const (
	// phaseCountdown: the question has not been delivered yet, answers are not accepted.
	phaseCountdown phase = iota
	// phaseAwaiting: the question is out and nobody has answered.
	phaseAwaiting
	// phaseOneWrong: one player answered wrong, the other may still answer.
	phaseOneWrong
	// phaseResolved: the round was won or both answered wrong. Lasts until the next question is delivered.
	phaseResolved
	// phaseOver: the match has ended.
	phaseOver
)

func (p phase) String() string {
	switch p {
	case phaseCountdown:
		return "countdown"
	case phaseAwaiting:
		return "awaiting_answers"
	case phaseOneWrong:
		return "one_wrong_pending"
	case phaseResolved:
		return "resolved"
	case phaseOver:
		return "over"
	default:
		return "unknown"
	}
}

const nobody = -1

type round struct {
	phase phase
	// wrong is the seat that answered wrong in phaseOneWrong.
	wrong int
	// winner is the seat credited in phaseResolved, nobody when both answered wrong or time ran out.
	winner int
}

// verdict tells how an answer was judged.
type verdict int

const (
	verdictTooEarly verdict = iota
	verdictScored
	verdictAlreadyWon
	verdictWrong
	verdictBothWrong
	verdictRoundOver
	verdictMatchOver
)

func (v verdict) String() string {
	switch v {
	case verdictTooEarly:
		return "too_early"
	case verdictScored:
		return "scored"
	case verdictAlreadyWon:
		return "already_won"
	case verdictWrong:
		return "wrong"
	case verdictBothWrong:
		return "both_wrong"
	case verdictRoundOver:
		return "round_over"
	case verdictMatchOver:
		return "match_over"
	default:
		return "unknown"
	}
}

// resolves reports whether the verdict ends the round.
func (v verdict) resolves() bool {
	return v == verdictScored || v == verdictBothWrong
}

// open starts a round once its question has been delivered.
func open() round {
	return round{phase: phaseAwaiting, wrong: nobody, winner: nobody}
}

// answer applies an answer from seat to the round. The first correct answer wins the round;
// two wrong answers from different seats resolve it without a winner.
func (r round) answer(seat int, correct bool) (round, verdict) {
	switch r.phase {
	case phaseAwaiting:
		if correct {
			return round{phase: phaseResolved, wrong: nobody, winner: seat}, verdictScored
		}
		return round{phase: phaseOneWrong, wrong: seat, winner: nobody}, verdictWrong

	case phaseOneWrong:
		if correct {
			return round{phase: phaseResolved, wrong: r.wrong, winner: seat}, verdictScored
		}
		if seat == r.wrong {
			return r, verdictWrong
		}
		return round{phase: phaseResolved, wrong: nobody, winner: nobody}, verdictBothWrong

	case phaseResolved:
		if correct && r.winner != nobody {
			return r, verdictAlreadyWon
		}
		return r, verdictRoundOver

	case phaseOver:
		return r, verdictMatchOver

	default:
		return r, verdictTooEarly
	}
}

// expire resolves an open round without a winner. ok is false when the round was not open.
func (r round) expire() (round, bool) {
	if r.phase != phaseAwaiting && r.phase != phaseOneWrong {
		return r, false
	}
	return round{phase: phaseResolved, wrong: nobody, winner: nobody}, true
}
