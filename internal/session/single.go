package session

import (
	"github.com/victornm/trivia/internal/domain"
)

// Single is one player's progress through a quiz. The question order is fixed at start.
// A Single is only touched while its player's lock is held.
type Single struct {
	player    domain.Player
	quizID    int64
	questions []domain.Question
	index     int
	score     int
}

func newSingle(p domain.Player, quizID int64, questions []domain.Question) *Single {
	return &Single{
		player:    p,
		quizID:    quizID,
		questions: questions,
	}
}

func (s *Single) current() domain.Question {
	return s.questions[s.index]
}

func (s *Single) total() int {
	return len(s.questions)
}

// singleStep is the outcome of an answer, applied with commit once its effects succeeded.
type singleStep struct {
	correct  bool
	index    int
	score    int
	finished bool
}

// answer judges text against the current question. Every answer moves to the next question.
func (s *Single) answer(text string) singleStep {
	st := singleStep{
		correct: s.current().Accepts(text),
		index:   s.index + 1,
		score:   s.score,
	}
	if st.correct {
		st.score++
	}
	st.finished = st.index == s.total()
	return st
}

func (s *Single) commit(st singleStep) {
	s.index = st.index
	s.score = st.score
}

func (s *Single) ref() Ref {
	return Ref{
		Kind:   KindSingle,
		QuizID: s.quizID,
		Index:  s.index,
		Total:  s.total(),
		Score:  s.score,
	}
}
