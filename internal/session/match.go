package session

import (
	"sync"

	"github.com/victornm/trivia/internal/domain"
)

// Match is a PvP game between two seats. Both seats share one question index,
// so they always play the same round.
type Match struct {
	id      string
	players [2]domain.Player

	mu        sync.Mutex
	questions []domain.Question
	current   int
	scores    [2]int
	round     round
	// roundDone is closed when the current round resolves and its result was delivered.
	roundDone chan struct{}

	abortOnce sync.Once
	aborted   chan struct{}
}

func newMatch(id string, p1, p2 domain.Player) *Match {
	return &Match{
		id:        id,
		players:   [2]domain.Player{p1, p2},
		current:   -1,
		round:     round{phase: phaseCountdown, wrong: nobody, winner: nobody},
		roundDone: make(chan struct{}),
		aborted:   make(chan struct{}),
	}
}

// seat returns the seat index of the player, -1 when the player is not in the match.
func (m *Match) seat(p domain.PlayerID) int {
	for i, pl := range m.players {
		if pl.ID == p {
			return i
		}
	}
	return -1
}

func other(seat int) int {
	return 1 - seat
}

// judgement is the atomic outcome of one answer.
type judgement struct {
	verdict  verdict
	seat     int
	question domain.Question
	// done is the resolved round's channel. The answering side closes it once the
	// round result was sent, so the runner never delivers the next question first.
	done chan struct{}
}

// judge applies an answer under the match lock. Two concurrent correct answers are
// ordered by lock acquisition, so exactly one of them scores.
func (m *Match) judge(p domain.PlayerID, text string) judgement {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seat(p)
	switch {
	case m.round.phase == phaseOver:
		return judgement{verdict: verdictMatchOver, seat: seat}
	case m.current < 0 || seat < 0:
		return judgement{verdict: verdictTooEarly, seat: seat}
	}

	q := m.questions[m.current]
	next, v := m.round.answer(seat, q.Accepts(text))
	m.round = next

	if v == verdictScored {
		m.scores[seat]++
	}

	j := judgement{verdict: v, seat: seat, question: q}
	if v.resolves() {
		j.done = m.roundDone
	}
	return j
}

// openRound moves both seats to question next and accepts answers for it.
// Returns the channel closed when the round is resolved and reported.
func (m *Match) openRound(next int) (<-chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.phase == phaseOver {
		return nil, false
	}

	m.current = next
	m.round = open()
	m.roundDone = make(chan struct{})
	return m.roundDone, true
}

// expireRound resolves the round at index without a winner if it is still open.
func (m *Match) expireRound(index int) (domain.Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != index {
		return domain.Question{}, false
	}

	next, ok := m.round.expire()
	if !ok {
		return domain.Question{}, false
	}

	m.round = next
	close(m.roundDone)
	return m.questions[index], true
}

// nextIndex returns the index of the next question and whether one is left.
func (m *Match) nextIndex() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current + 1
	return next, next < len(m.questions)
}

func (m *Match) setQuestions(qs []domain.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.questions = qs
}

// end closes the match for answers and returns the final scores.
// ok is false when the match had already ended.
func (m *Match) end() ([2]int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.phase == phaseOver {
		return m.scores, false
	}

	m.round = round{phase: phaseOver, wrong: nobody, winner: nobody}
	return m.scores, true
}

// abort wakes the match runner. Safe to call more than once.
func (m *Match) abort() {
	m.abortOnce.Do(func() { close(m.aborted) })
}

func (m *Match) ref(p domain.PlayerID) Ref {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seat(p)
	r := Ref{
		Kind:    KindMatch,
		MatchID: m.id,
		Index:   m.current,
		Total:   len(m.questions),
	}
	if seat >= 0 {
		r.Opponent = m.players[other(seat)]
		r.Score = m.scores[seat]
	}
	return r
}
