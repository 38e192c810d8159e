package session

import (
	"sync"

	"github.com/victornm/trivia/internal/domain"
)

// Kind is the type of session a player holds.
type Kind string

const (
	KindSingle Kind = "single"
	KindMatch  Kind = "pvp"
)

// Ref is a snapshot of a player's active session.
type Ref struct {
	Kind Kind

	// Single session.
	QuizID int64

	// PvP match.
	MatchID  string
	Opponent domain.Player

	// Index is the 0-based position of the current question, -1 before the first PvP question.
	Index int
	Total int
	Score int
}

// entry points at exactly one of single or match.
type entry struct {
	single *Single
	match  *Match
}

func (e entry) kind() Kind {
	if e.match != nil {
		return KindMatch
	}
	return KindSingle
}

// registry maps a player to the one session it participates in.
// It only guards the map, transitions are serialized by the per-player locks of Service.
type registry struct {
	mu      sync.Mutex
	entries map[domain.PlayerID]entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[domain.PlayerID]entry)}
}

func (r *registry) get(p domain.PlayerID) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[p]
	return e, ok
}

func (r *registry) set(p domain.PlayerID, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[p] = e
}

// removeSingle deletes the entry of p if it still points at s.
func (r *registry) removeSingle(p domain.PlayerID, s *Single) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[p]; ok && e.single == s {
		delete(r.entries, p)
		return true
	}
	return false
}

// removeMatch deletes the entries of both players that still point at m.
func (r *registry) removeMatch(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range m.players {
		if e, ok := r.entries[p.ID]; ok && e.match == m {
			delete(r.entries, p.ID)
		}
	}
}

// holds reports whether both players of m are still registered to it.
func (r *registry) holds(m *Match) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range m.players {
		if e, ok := r.entries[p.ID]; !ok || e.match != m {
			return false
		}
	}
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
