package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound_Answer(t *testing.T) {
	type answer struct {
		seat    int
		correct bool
	}

	tests := map[string]struct {
		start    round
		answers  []answer
		verdicts []verdict
		end      round
	}{
		"answers before the question is delivered are rejected": {
			start:    round{phase: phaseCountdown, wrong: nobody, winner: nobody},
			answers:  []answer{{0, true}, {1, false}},
			verdicts: []verdict{verdictTooEarly, verdictTooEarly},
			end:      round{phase: phaseCountdown, wrong: nobody, winner: nobody},
		},

		"first correct answer wins the round": {
			start:    open(),
			answers:  []answer{{1, true}},
			verdicts: []verdict{verdictScored},
			end:      round{phase: phaseResolved, wrong: nobody, winner: 1},
		},

		"a second correct answer is late": {
			start:    open(),
			answers:  []answer{{0, true}, {1, true}},
			verdicts: []verdict{verdictScored, verdictAlreadyWon},
			end:      round{phase: phaseResolved, wrong: nobody, winner: 0},
		},

		"one wrong answer waits for the opponent": {
			start:    open(),
			answers:  []answer{{0, false}},
			verdicts: []verdict{verdictWrong},
			end:      round{phase: phaseOneWrong, wrong: 0, winner: nobody},
		},

		"opponent may still win after a wrong answer": {
			start:    open(),
			answers:  []answer{{0, false}, {1, true}},
			verdicts: []verdict{verdictWrong, verdictScored},
			end:      round{phase: phaseResolved, wrong: 0, winner: 1},
		},

		"two wrong answers resolve the round without a winner": {
			start:    open(),
			answers:  []answer{{0, false}, {1, false}},
			verdicts: []verdict{verdictWrong, verdictBothWrong},
			end:      round{phase: phaseResolved, wrong: nobody, winner: nobody},
		},

		"repeated wrong answers from the same seat keep waiting": {
			start:    open(),
			answers:  []answer{{1, false}, {1, false}},
			verdicts: []verdict{verdictWrong, verdictWrong},
			end:      round{phase: phaseOneWrong, wrong: 1, winner: nobody},
		},

		"wrong answers after resolution do not reopen the round": {
			start:    open(),
			answers:  []answer{{0, true}, {1, false}},
			verdicts: []verdict{verdictScored, verdictRoundOver},
			end:      round{phase: phaseResolved, wrong: nobody, winner: 0},
		},

		"a correct answer after two wrong ones is late without a winner": {
			start:    open(),
			answers:  []answer{{0, false}, {1, false}, {0, true}},
			verdicts: []verdict{verdictWrong, verdictBothWrong, verdictRoundOver},
			end:      round{phase: phaseResolved, wrong: nobody, winner: nobody},
		},

		"a correct answer after the time ran out is late without a winner": {
			start:    round{phase: phaseResolved, wrong: nobody, winner: nobody},
			answers:  []answer{{1, true}},
			verdicts: []verdict{verdictRoundOver},
			end:      round{phase: phaseResolved, wrong: nobody, winner: nobody},
		},

		"a finished match accepts nothing": {
			start:    round{phase: phaseOver, wrong: nobody, winner: nobody},
			answers:  []answer{{0, true}, {1, false}},
			verdicts: []verdict{verdictMatchOver, verdictMatchOver},
			end:      round{phase: phaseOver, wrong: nobody, winner: nobody},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := tt.start
			var got []verdict
			for _, a := range tt.answers {
				var v verdict
				r, v = r.answer(a.seat, a.correct)
				got = append(got, v)
			}

			assert.Equal(t, tt.verdicts, got)
			assert.Equal(t, tt.end, r)
		})
	}
}

func TestRound_Expire(t *testing.T) {
	r, ok := open().expire()
	assert.True(t, ok)
	assert.Equal(t, round{phase: phaseResolved, wrong: nobody, winner: nobody}, r)

	r, _ = open().answer(0, false)
	r, ok = r.expire()
	assert.True(t, ok)
	assert.Equal(t, phaseResolved, r.phase)

	won, _ := open().answer(0, true)
	_, ok = won.expire()
	assert.False(t, ok, "a resolved round cannot expire")
}
