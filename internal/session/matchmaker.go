package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/telemetry"
)

// queue is the FIFO of players waiting for an opponent. Players taken for pairing
// leave waiting and stay in pairing until their match starts or the pairing fails.
type queue struct {
	mu      sync.Mutex
	waiting []domain.Player
	pairing map[domain.PlayerID]bool
}

func (q *queue) index(p domain.PlayerID) int {
	return slices.IndexFunc(q.waiting, func(w domain.Player) bool { return w.ID == p })
}

// contains reports whether p is waiting or being paired. Caller holds q.mu.
func (q *queue) contains(p domain.PlayerID) bool {
	return q.index(p) >= 0 || q.pairing[p]
}

// remove drops the given players if they are waiting or being paired. Caller holds q.mu.
func (q *queue) remove(ids ...domain.PlayerID) {
	q.waiting = slices.DeleteFunc(q.waiting, func(w domain.Player) bool {
		return slices.Contains(ids, w.ID)
	})
	for _, id := range ids {
		delete(q.pairing, id)
	}
	telemetry.QueueLength.Set(float64(len(q.waiting)))
}

// take moves the two earliest waiting players to pairing. Caller holds q.mu.
func (q *queue) take() ([2]domain.Player, bool) {
	if len(q.waiting) < 2 {
		return [2]domain.Player{}, false
	}

	pair := [2]domain.Player{q.waiting[0], q.waiting[1]}
	q.waiting = slices.Delete(q.waiting, 0, 2)
	if q.pairing == nil {
		q.pairing = make(map[domain.PlayerID]bool)
	}
	for _, p := range pair {
		q.pairing[p.ID] = true
	}
	telemetry.QueueLength.Set(float64(len(q.waiting)))
	return pair, true
}

// paired reports whether both players are still being paired. Caller holds q.mu.
func (q *queue) paired(pair [2]domain.Player) bool {
	return q.pairing[pair[0].ID] && q.pairing[pair[1].ID]
}

// settle ends the pairing of both players. Those in putBack that did not leave meanwhile
// return to the front of the queue. Caller holds q.mu.
func (q *queue) settle(pair [2]domain.Player, putBack ...domain.Player) {
	var front []domain.Player
	for _, p := range putBack {
		if q.pairing[p.ID] {
			front = append(front, p)
		}
	}
	for _, p := range pair {
		delete(q.pairing, p.ID)
	}

	q.waiting = slices.Insert(q.waiting, 0, front...)
	telemetry.QueueLength.Set(float64(len(q.waiting)))
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.waiting)
}

// JoinStatus tells what JoinQueue did with the player.
type JoinStatus string

const (
	JoinQueued JoinStatus = "queued"
	JoinPaired JoinStatus = "paired"
)

type JoinQueueResponse struct {
	Status JoinStatus
	// MatchID and Opponent are set when the player was paired.
	MatchID  string
	Opponent domain.Player
}

// JoinQueue puts the player in the PvP queue. When a second player is waiting the two
// earliest players are paired, their single sessions are finalized silently and a match starts.
// Pairing runs outside the queue lock, so storage latency does not hold up other players.
func (s *Service) JoinQueue(ctx context.Context, p domain.Player) (*JoinQueueResponse, error) {
	logger := slog.With("player", p.ID, "transition", "pvp.enqueue")

	pending, ok, err := s.enqueue(ctx, p, logger)
	if err != nil {
		return nil, err
	}

	resp := &JoinQueueResponse{Status: JoinQueued}
	var joinErr error
	for ok {
		m, dropped, err := s.pair(ctx, pending, logger)
		switch {
		case err != nil && dropped == 0:
			return nil, err
		case err != nil && dropped == p.ID:
			joinErr = err
		case err != nil:
			logger.WarnContext(ctx, "session: pairing failed", "dropped", dropped, "error", err)
		case m != nil && m.seat(p.ID) >= 0:
			seat := m.seat(p.ID)
			resp = &JoinQueueResponse{
				Status:   JoinPaired,
				MatchID:  m.id,
				Opponent: m.players[other(seat)],
			}
		}

		s.queue.mu.Lock()
		pending, ok = s.queue.take()
		s.queue.mu.Unlock()
	}

	if joinErr != nil {
		return nil, joinErr
	}
	if resp.Status == JoinQueued && s.Queued(p.ID) {
		s.notify(ctx, p.ID, domain.Message{Text: textQueued, Options: leaveQueueOptions()}, logger)
	}
	return resp, nil
}

// enqueue appends the player under the queue lock and takes the two earliest players
// for pairing when there are enough.
func (s *Service) enqueue(ctx context.Context, p domain.Player, logger *slog.Logger) ([2]domain.Player, bool, error) {
	s.queue.mu.Lock()

	if s.queue.contains(p.ID) {
		s.queue.mu.Unlock()
		s.notify(ctx, p.ID, domain.Message{Text: textAlreadyQueued}, logger)
		return [2]domain.Player{}, false, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadyQueued),
			errors.WithMessagef("player already queued: player=%d", p.ID),
		)
	}

	if e, ok := s.registry.get(p.ID); ok && e.match != nil {
		s.queue.mu.Unlock()
		s.notify(ctx, p.ID, domain.Message{Text: textAlreadyInMatch}, logger)
		return [2]domain.Player{}, false, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadyInMatch),
			errors.WithMessagef("player already in a match: player=%d", p.ID),
		)
	}

	s.queue.waiting = append(s.queue.waiting, p)
	telemetry.QueueLength.Set(float64(len(s.queue.waiting)))
	pair, ok := s.queue.take()
	s.queue.mu.Unlock()

	if !ok {
		logger.InfoContext(ctx, "session: player queued")
	}
	return pair, ok, nil
}

// pair starts the match of two players taken from the queue. Called without the queue lock.
// A player whose single session cannot be finalized drops out of the queue and gets an apology,
// the other one returns to the front of the queue. dropped names that player, it is zero when
// both players stay queued.
func (s *Service) pair(ctx context.Context, pair [2]domain.Player, logger *slog.Logger) (m *Match, dropped domain.PlayerID, err error) {
	a, b := pair[0], pair[1]

	unlock := s.players.LockAll(ascending(a.ID, b.ID)...)
	defer unlock()

	for i, p := range pair {
		e, ok := s.registry.get(p.ID)
		if !ok || e.single == nil {
			continue
		}
		if err := s.finishSingle(ctx, e.single, true); err != nil {
			s.queue.mu.Lock()
			s.queue.settle(pair, pair[other(i)])
			s.queue.mu.Unlock()

			s.apologize(ctx, p.ID, logger.With("dropped", p.ID), err)
			return nil, p.ID, fmt.Errorf("pair: finalize single session: player=%d: %w", p.ID, err)
		}
	}

	id, err := s.newMatchID()
	if err != nil {
		s.queue.mu.Lock()
		s.queue.settle(pair, a, b)
		s.queue.mu.Unlock()
		return nil, 0, fmt.Errorf("pair: new match id: %w", err)
	}

	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()

	if !s.queue.paired(pair) {
		// One of them left while their single sessions were finalized.
		s.queue.settle(pair, a, b)
		return nil, 0, nil
	}
	s.queue.settle(pair)

	m = newMatch(id, a, b)
	s.registry.set(a.ID, entry{match: m})
	s.registry.set(b.ID, entry{match: m})

	telemetry.SessionsStarted.WithLabelValues(string(KindMatch)).Inc()
	logger.InfoContext(ctx, "session: players paired", "match", id, "first", a.ID, "second", b.ID)

	s.wg.Add(1)
	go s.runMatch(m)

	return m, 0, nil
}

// LeaveQueue removes the player from the PvP queue.
func (s *Service) LeaveQueue(ctx context.Context, p domain.PlayerID) error {
	logger := slog.With("player", p, "transition", "pvp.dequeue")

	s.queue.mu.Lock()
	found := s.queue.contains(p)
	if found {
		s.queue.remove(p)
	}
	s.queue.mu.Unlock()

	if !found {
		s.notify(ctx, p, domain.Message{Text: textNotQueued}, logger)
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonNotQueued),
			errors.WithMessagef("player not queued: player=%d", p),
		)
	}

	logger.InfoContext(ctx, "session: player left the queue")
	s.notify(ctx, p, domain.Message{Text: textLeftQueue}, logger)
	return nil
}

// Queued reports whether the player is waiting for an opponent.
func (s *Service) Queued(p domain.PlayerID) bool {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()

	return s.queue.contains(p)
}

func ascending(a, b domain.PlayerID) []domain.PlayerID {
	if b < a {
		return []domain.PlayerID{b, a}
	}
	return []domain.PlayerID{a, b}
}

func newMatchID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
