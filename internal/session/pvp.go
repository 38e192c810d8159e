package session

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/telemetry"
)

// answerMatch judges a PvP answer. Caller holds p's lock.
// Delivery failures are logged, the judged state is kept.
func (s *Service) answerMatch(ctx context.Context, p domain.Player, m *Match, text string) error {
	j := m.judge(p.ID, text)
	if j.done != nil {
		defer close(j.done)
	}

	logger := slog.With("player", p.ID, "match", m.id, "transition", "pvp.answer", "verdict", j.verdict.String())
	logger.DebugContext(ctx, "session: pvp answer judged")

	switch j.verdict {
	case verdictTooEarly:
		s.notify(ctx, p.ID, domain.Message{Text: textTooEarly}, logger)
		return nil
	case verdictMatchOver:
		s.notify(ctx, p.ID, domain.Message{Text: textMatchOver}, logger)
		return nil
	case verdictAlreadyWon:
		s.notify(ctx, p.ID, domain.Message{Text: textAlreadyWon}, logger)
		return nil
	case verdictRoundOver:
		s.notify(ctx, p.ID, domain.Message{Text: textRoundOver}, logger)
		return nil
	}

	telemetry.Answers.WithLabelValues(string(KindMatch), result(j.verdict == verdictScored)).Inc()

	if j.verdict == verdictScored {
		s.broadcast(ctx, m, logger, func(seat int) domain.Message {
			if seat == j.seat {
				return domain.Message{Text: textCorrect}
			}
			return domain.Message{Text: textOpponentScored(p)}
		})
		return nil
	}

	s.notify(ctx, p.ID, domain.Message{Text: textWrong}, logger)
	return nil
}

// runMatch drives the match rounds. It holds no session locks, so sessions of
// other players make progress during the pauses.
func (s *Service) runMatch(m *Match) {
	defer s.wg.Done()

	ctx := s.ctx
	logger := slog.With("match", m.id, "first", m.players[0].ID, "second", m.players[1].ID)

	s.broadcast(ctx, m, logger, func(seat int) domain.Message {
		return domain.Message{Text: textMatchStarting(m.players[other(seat)])}
	})
	s.broadcast(ctx, m, logger, func(int) domain.Message {
		return domain.Message{Text: textMatchRules(int(s.preMatchDelay / time.Second))}
	})

	if !s.pause(ctx, m, s.preMatchDelay) {
		s.stopMatch(ctx, m, logger)
		return
	}

	qs, err := s.questions.SampleRandom(ctx, s.pvpQuestions)
	if err != nil {
		logger.ErrorContext(ctx, "session: sample pvp questions failed", "error", err)
		s.abortMatch(ctx, m, logger, textApology)
		return
	}
	if len(qs) == 0 {
		err := errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonEmptyQuiz),
			errors.WithMessagef("no questions for pvp: match=%s", m.id),
		)
		logger.WarnContext(ctx, "session: cancel match", "error", err)
		s.abortMatch(ctx, m, logger, textNoPvPQuestions)
		return
	}
	if len(qs) < s.pvpQuestions {
		logger.WarnContext(ctx, "session: fewer pvp questions than requested", "want", s.pvpQuestions, "got", len(qs))
	}
	m.setQuestions(qs)

	for {
		next, ok := m.nextIndex()
		if !ok {
			break
		}

		if !s.registry.holds(m) {
			s.missingState(ctx, m, logger, next)
			return
		}
		if !s.countdownRound(ctx, m, logger) {
			s.stopMatch(ctx, m, logger)
			return
		}
		if !s.registry.holds(m) {
			s.missingState(ctx, m, logger, next)
			return
		}

		q := qs[next]
		s.broadcast(ctx, m, logger, func(int) domain.Message { return domain.Message{Text: q.Prompt} })

		done, ok := m.openRound(next)
		if !ok {
			return
		}
		if !s.awaitRound(ctx, m, logger, next, done) {
			s.stopMatch(ctx, m, logger)
			return
		}
	}

	s.finishMatch(ctx, m, logger)
}

// pause waits d unless the match is aborted or the service stops first.
func (s *Service) pause(ctx context.Context, m *Match, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-m.aborted:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-m.aborted:
		return false
	case <-ctx.Done():
		return false
	}
}

// countdownRound renders the countdown as one status message per player, edited on every tick.
func (s *Service) countdownRound(ctx context.Context, m *Match, logger *slog.Logger) bool {
	if s.countdown <= 0 {
		return s.pause(ctx, m, 0)
	}

	var refs [2]domain.MessageRef
	for seat, p := range m.players {
		ref, err := s.notifier.Send(ctx, p.ID, domain.Message{Text: textCountdown(s.countdown)})
		if err != nil {
			logger.WarnContext(ctx, "session: send countdown failed", "to", p.ID, "error", err)
		}
		refs[seat] = ref
	}

	for n := s.countdown - 1; n > 0; n-- {
		if !s.pause(ctx, m, s.countdownStep) {
			return false
		}
		for seat, p := range m.players {
			if refs[seat] == "" {
				continue
			}
			if err := s.notifier.Edit(ctx, p.ID, refs[seat], textCountdown(n)); err != nil {
				logger.WarnContext(ctx, "session: edit countdown failed", "to", p.ID, "error", err)
			}
		}
	}

	return s.pause(ctx, m, s.countdownStep)
}

// awaitRound blocks until the round at index resolves or times out.
func (s *Service) awaitRound(ctx context.Context, m *Match, logger *slog.Logger, index int, done <-chan struct{}) bool {
	var timeout <-chan time.Time
	if s.roundTimeout > 0 {
		t := time.NewTimer(s.roundTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-done:
		return true
	case <-timeout:
		if q, ok := m.expireRound(index); ok {
			logger.InfoContext(ctx, "session: pvp round timed out", "index", index)
			s.broadcast(ctx, m, logger, func(int) domain.Message { return domain.Message{Text: textTimeUp(q.Answer)} })
			return true
		}
	case <-m.aborted:
		return false
	case <-ctx.Done():
		return false
	}

	// An answer resolved the round just before the timeout, its result is still being sent.
	select {
	case <-done:
		return true
	case <-m.aborted:
		return false
	case <-ctx.Done():
		return false
	}
}

// finishMatch reports the personalized result to both players and releases the match.
func (s *Service) finishMatch(ctx context.Context, m *Match, logger *slog.Logger) {
	scores, ok := m.end()
	if !ok {
		return
	}
	s.releaseMatch(m)

	s.broadcast(ctx, m, logger, func(seat int) domain.Message {
		o := other(seat)
		return domain.Message{
			Text:    textMatchResult(scores[seat], scores[o], m.players[o]),
			Options: modeOptions(),
		}
	})

	outcome := domain.MatchOutcomeWin
	if scores[0] == scores[1] {
		outcome = domain.MatchOutcomeDraw
	}
	logger.InfoContext(ctx, "session: match finished", "outcome", outcome, "scores", scores)

	s.publishFinished(ctx, m, scores, outcome)
}

// forfeit aborts the match because p left it. Caller holds p's lock.
func (s *Service) forfeit(ctx context.Context, p domain.Player, m *Match) {
	scores, ok := m.end()
	if !ok {
		return
	}
	m.abort()
	s.registry.removeMatch(m)

	logger := slog.With("player", p.ID, "match", m.id, "transition", "pvp.forfeit")
	logger.InfoContext(ctx, "session: player left the match", "scores", scores)

	if seat := m.seat(p.ID); seat >= 0 {
		leaver, opponent := m.players[seat], m.players[other(seat)]
		s.notify(ctx, opponent.ID, domain.Message{Text: textOpponentLeft(leaver), Options: modeOptions()}, logger)
	}

	s.publishFinished(ctx, m, scores, domain.MatchOutcomeAborted)
}

// missingState aborts a match whose registry entries vanished.
func (s *Service) missingState(ctx context.Context, m *Match, logger *slog.Logger, index int) {
	err := errors.New(errors.CodeAborted,
		errors.WithReason(errors.ReasonMissingMatchState),
		errors.WithMessagef("missing match state: match=%s index=%d", m.id, index),
	)
	logger.ErrorContext(ctx, "session: abort match", "error", err)

	s.abortMatch(ctx, m, logger, textMatchAborted)
}

// stopMatch runs when the runner was woken by an abort or a service shutdown.
func (s *Service) stopMatch(ctx context.Context, m *Match, logger *slog.Logger) {
	s.abortMatch(context.WithoutCancel(ctx), m, logger, textMatchAborted)
}

// abortMatch ends the match without a result and tells registered players why.
// It is a no-op when the match already ended.
func (s *Service) abortMatch(ctx context.Context, m *Match, logger *slog.Logger, text string) {
	scores, ok := m.end()
	if !ok {
		return
	}
	m.abort()

	// Players whose entry no longer points at m have vanished or moved on.
	var present []domain.PlayerID
	for _, p := range m.players {
		if e, ok := s.registry.get(p.ID); ok && e.match == m {
			present = append(present, p.ID)
		}
	}
	s.releaseMatch(m)

	for _, p := range present {
		s.notify(ctx, p, domain.Message{Text: text, Options: modeOptions()}, logger)
	}

	logger.InfoContext(ctx, "session: match aborted", "scores", scores)
	s.publishFinished(ctx, m, scores, domain.MatchOutcomeAborted)
}

// releaseMatch removes the match from the registry and drops its players from the queue.
// Only the runner calls it, it takes the queue lock.
func (s *Service) releaseMatch(m *Match) {
	s.registry.removeMatch(m)

	s.queue.mu.Lock()
	s.queue.remove(m.players[0].ID, m.players[1].ID)
	s.queue.mu.Unlock()
}

func (s *Service) publishFinished(ctx context.Context, m *Match, scores [2]int, outcome domain.MatchOutcome) {
	if s.eb == nil {
		return
	}
	s.eb.Publish(ctx, domain.EventMatchFinished{
		MatchID: m.id,
		Players: m.players,
		Scores:  scores,
		Outcome: outcome,
	})
}

// broadcast sends a message to both players concurrently. Failures are logged.
func (s *Service) broadcast(ctx context.Context, m *Match, logger *slog.Logger, message func(seat int) domain.Message) {
	var g errgroup.Group
	for seat, p := range m.players {
		msg := message(seat)
		g.Go(func() error {
			if _, err := s.notifier.Send(ctx, p.ID, msg); err != nil {
				logger.WarnContext(ctx, "session: broadcast failed", "to", p.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
