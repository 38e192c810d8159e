package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/lock"
	"github.com/victornm/trivia/internal/score"
	"github.com/victornm/trivia/internal/telemetry"
)

const defaultPvPQuestions = 10

// QuestionStore supplies questions, see storage.Store.
type QuestionStore interface {
	QuestionsFor(ctx context.Context, quizID int64) ([]domain.Question, error)
	SampleRandom(ctx context.Context, n int) ([]domain.Question, error)
}

// Ledger persists best scores, see score.Service.
type Ledger interface {
	SaveBestScore(ctx context.Context, req score.SaveBestScoreRequest) (*score.SaveBestScoreResponse, error)
}

// Notifier delivers outbound messages to players through the chat transport.
type Notifier interface {
	Send(ctx context.Context, to domain.PlayerID, m domain.Message) (domain.MessageRef, error)
	Edit(ctx context.Context, to domain.PlayerID, ref domain.MessageRef, text string) error
}

type Config struct {
	EventBus  *event.Bus
	Questions QuestionStore
	Scores    Ledger
	Notifier  Notifier

	// PvPQuestions is the number of questions sampled for a match.
	PvPQuestions int
	// PreMatchDelay is the pause between pairing and the first countdown.
	PreMatchDelay time.Duration
	// Countdown is the number of countdown ticks before each PvP question, 0 disables it.
	Countdown int
	// CountdownStep is the time between two countdown ticks.
	CountdownStep time.Duration
	// RoundTimeout resolves an unanswered PvP round without a winner, 0 waits forever.
	RoundTimeout time.Duration

	// Shuffle permutes single-session questions. Defaults to math/rand/v2.
	Shuffle func(n int, swap func(i, j int))
	// NewMatchID generates match ids. Defaults to uuid v7.
	NewMatchID func() (string, error)
}

// Service is the quiz session engine. It owns every player's session and the PvP queue.
//
// Lock order: player locks (ascending id), queue, match, registry.
type Service struct {
	eb        *event.Bus
	questions QuestionStore
	scores    Ledger
	notifier  Notifier

	pvpQuestions  int
	preMatchDelay time.Duration
	countdown     int
	countdownStep time.Duration
	roundTimeout  time.Duration
	shuffle       func(n int, swap func(i, j int))
	newMatchID    func() (string, error)

	players  lock.Keyed[domain.PlayerID]
	registry *registry
	queue    *queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(c Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		eb:            c.EventBus,
		questions:     c.Questions,
		scores:        c.Scores,
		notifier:      c.Notifier,
		pvpQuestions:  c.PvPQuestions,
		preMatchDelay: c.PreMatchDelay,
		countdown:     c.Countdown,
		countdownStep: c.CountdownStep,
		roundTimeout:  c.RoundTimeout,
		shuffle:       c.Shuffle,
		newMatchID:    c.NewMatchID,
		registry:      newRegistry(),
		queue:         new(queue),
		ctx:           ctx,
		cancel:        cancel,
	}

	if s.pvpQuestions <= 0 {
		s.pvpQuestions = defaultPvPQuestions
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	if s.newMatchID == nil {
		s.newMatchID = newMatchID
	}

	return s
}

// Stop aborts running matches and waits for their runners to return.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Current returns the player's active session.
func (s *Service) Current(p domain.PlayerID) (Ref, bool) {
	unlock := s.players.Lock(p)
	defer unlock()

	e, ok := s.registry.get(p)
	if !ok {
		return Ref{}, false
	}

	if e.match != nil {
		return e.match.ref(p), true
	}
	return e.single.ref(), true
}

// End terminates the player's session. A single session is persisted silently,
// a PvP match is aborted for both players.
func (s *Service) End(ctx context.Context, p domain.Player) error {
	unlock := s.players.Lock(p.ID)
	defer unlock()

	e, ok := s.registry.get(p.ID)
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonNoSession),
			errors.WithMessagef("no active session: player=%d", p.ID),
		)
	}

	return s.release(ctx, p, e)
}

// release finalizes the session e held by p. Caller holds p's lock.
func (s *Service) release(ctx context.Context, p domain.Player, e entry) error {
	if e.match != nil {
		s.forfeit(ctx, p, e.match)
		return nil
	}
	return s.finishSingle(ctx, e.single, true)
}

// StartSingle starts a single-player session on the quiz, replacing any session the player holds.
func (s *Service) StartSingle(ctx context.Context, p domain.Player, quizID int64) error {
	unlock := s.players.Lock(p.ID)
	defer unlock()

	logger := slog.With("player", p.ID, "quiz", quizID, "transition", "single.start")

	qs, err := s.questions.QuestionsFor(ctx, quizID)
	if err != nil {
		s.apologize(ctx, p.ID, logger, err)
		return fmt.Errorf("start single: %w", err)
	}

	if len(qs) == 0 {
		logger.WarnContext(ctx, "session: quiz has no questions")
		s.notify(ctx, p.ID, domain.Message{Text: textEmptyQuiz}, logger)
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonEmptyQuiz),
			errors.WithMessagef("quiz has no questions: quiz=%d", quizID),
		)
	}

	questions := make([]domain.Question, len(qs))
	copy(questions, qs)
	s.shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })

	if old, ok := s.registry.get(p.ID); ok {
		if err := s.release(ctx, p, old); err != nil {
			s.apologize(ctx, p.ID, logger, err)
			return fmt.Errorf("start single: replace %s session: %w", old.kind(), err)
		}
	}

	sess := newSingle(p, quizID, questions)
	if _, err := s.notifier.Send(ctx, p.ID, domain.Message{Text: sess.current().Prompt}); err != nil {
		logger.ErrorContext(ctx, "session: send first question failed", "error", err)
		return fmt.Errorf("start single: send question: %w", err)
	}

	s.registry.set(p.ID, entry{single: sess})

	telemetry.SessionsStarted.WithLabelValues(string(KindSingle)).Inc()
	logger.InfoContext(ctx, "session: single session started", "questions", len(questions))
	return nil
}

// SubmitAnswer routes an answer to the player's single session or PvP match.
func (s *Service) SubmitAnswer(ctx context.Context, p domain.Player, text string) error {
	unlock := s.players.Lock(p.ID)
	defer unlock()

	e, ok := s.registry.get(p.ID)
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonNoSession),
			errors.WithMessagef("no active session: player=%d", p.ID),
		)
	}

	if e.match != nil {
		return s.answerMatch(ctx, p, e.match, text)
	}
	return s.answerSingle(ctx, e.single, text)
}

// answerSingle commits the step only after its messages were delivered and,
// on the last question, the score was persisted.
func (s *Service) answerSingle(ctx context.Context, sess *Single, text string) error {
	p := sess.player
	logger := slog.With("player", p.ID, "quiz", sess.quizID, "index", sess.index, "transition", "single.answer")

	st := sess.answer(text)
	telemetry.Answers.WithLabelValues(string(KindSingle), result(st.correct)).Inc()

	feedback := textWrong
	if st.correct {
		feedback = textCorrect
	}
	if _, err := s.notifier.Send(ctx, p.ID, domain.Message{Text: feedback}); err != nil {
		logger.ErrorContext(ctx, "session: send feedback failed", "error", err)
		return fmt.Errorf("answer: send feedback: %w", err)
	}

	if !st.finished {
		next := sess.questions[st.index]
		if _, err := s.notifier.Send(ctx, p.ID, domain.Message{Text: next.Prompt}); err != nil {
			logger.ErrorContext(ctx, "session: send next question failed", "error", err)
			return fmt.Errorf("answer: send question: %w", err)
		}
		sess.commit(st)
		return nil
	}

	if _, err := s.persist(ctx, sess, st.score); err != nil {
		s.apologize(ctx, p.ID, logger, err)
		return fmt.Errorf("answer: %w", err)
	}
	sess.commit(st)
	s.registry.removeSingle(p.ID, sess)

	logger.InfoContext(ctx, "session: single session finished", "score", st.score, "total", sess.total())

	if err := s.sendSummary(ctx, sess); err != nil {
		logger.WarnContext(ctx, "session: send summary failed", "error", err)
	}
	return nil
}

// finishSingle ends the session early, persisting the score reached so far.
func (s *Service) finishSingle(ctx context.Context, sess *Single, silent bool) error {
	logger := slog.With("player", sess.player.ID, "quiz", sess.quizID, "transition", "single.finish")

	if _, err := s.persist(ctx, sess, sess.score); err != nil {
		logger.ErrorContext(ctx, "session: persist score failed", "error", err)
		return err
	}
	s.registry.removeSingle(sess.player.ID, sess)

	logger.InfoContext(ctx, "session: single session finished", "score", sess.score, "total", sess.total(), "silent", silent)

	if silent {
		return nil
	}
	if err := s.sendSummary(ctx, sess); err != nil {
		logger.WarnContext(ctx, "session: send summary failed", "error", err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, sess *Single, sc int) (*score.SaveBestScoreResponse, error) {
	resp, err := s.scores.SaveBestScore(ctx, score.SaveBestScoreRequest{
		Player: sess.player,
		QuizID: sess.quizID,
		Score:  sc,
	})
	if err != nil {
		return nil, fmt.Errorf("persist score: player=%d quiz=%d: %w", sess.player.ID, sess.quizID, err)
	}
	return resp, nil
}

func (s *Service) sendSummary(ctx context.Context, sess *Single) error {
	p := sess.player.ID
	if _, err := s.notifier.Send(ctx, p, domain.Message{Text: textSummary(sess.score, sess.total())}); err != nil {
		return err
	}
	_, err := s.notifier.Send(ctx, p, domain.Message{Text: textPlayAgain, Options: playAgainOptions(sess.quizID)})
	return err
}

// notify sends a message and logs delivery failures.
func (s *Service) notify(ctx context.Context, to domain.PlayerID, m domain.Message, logger *slog.Logger) {
	if _, err := s.notifier.Send(ctx, to, m); err != nil {
		logger.WarnContext(ctx, "session: notify failed", "to", to, "error", err)
	}
}

// apologize logs err and tells the player the action failed.
func (s *Service) apologize(ctx context.Context, to domain.PlayerID, logger *slog.Logger, err error) {
	logger.ErrorContext(ctx, "session: transition failed", "error", err)
	if stderrors.Is(err, errors.ErrStorageUnavailable) {
		s.notify(ctx, to, domain.Message{Text: textApology}, logger)
	}
}

func result(correct bool) string {
	if correct {
		return "correct"
	}
	return "wrong"
}
