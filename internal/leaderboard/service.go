package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
)

const defaultCacheTTL = time.Minute

// Records is the source of best-score records, see score.Service.
type Records interface {
	ListRecords(ctx context.Context) ([]domain.ScoreRecord, error)
}

type Config struct {
	EventBus *event.Bus
	Records  Records
	// Redis caches the ranked view. Optional.
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

type Service struct {
	eb      *event.Bus
	records Records
	redis   redis.UniversalClient
	prefix  string
	ttl     time.Duration

	group singleflight.Group
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		records: c.Records,
		redis:   c.Redis,
		prefix:  c.Prefix,
		ttl:     c.TTL,
	}
	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}

	invalidate := func(ctx context.Context, _ event.Event) error {
		return s.Invalidate(ctx)
	}
	s.eb.Subscribe(domain.EventNameScoreUpdated, invalidate)
	s.eb.Subscribe(domain.EventNameLeaderboardCleared, invalidate)

	return s
}

// Rank returns one entry per player holding the player's best raw score across all quizzes,
// ordered by score descending.
func (s *Service) Rank(ctx context.Context) (*domain.Leaderboard, error) {
	if l, ok := s.cached(ctx); ok {
		return l, nil
	}

	v, err, _ := s.group.Do("rank", func() (any, error) {
		version, versioned := s.version(ctx)

		records, err := s.records.ListRecords(ctx)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}

		l := &domain.Leaderboard{Entries: Reduce(records)}
		if versioned {
			s.store(ctx, l, version)
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	return v.(*domain.Leaderboard), nil
}

// Reduce keeps for each player the record with the highest raw score, the first one
// seen on ties, then orders the result by score descending and assigns 1-based ranks.
func Reduce(records []domain.ScoreRecord) []domain.LeaderboardEntry {
	best := make(map[domain.PlayerID]int, len(records))
	entries := make([]domain.LeaderboardEntry, 0, len(records))

	for _, r := range records {
		e := domain.LeaderboardEntry{
			PlayerID:       r.PlayerID,
			Username:       r.Username,
			QuizName:       r.QuizName,
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			Percentage:     percentage(r.Score, r.TotalQuestions),
		}

		i, ok := best[r.PlayerID]
		switch {
		case !ok:
			best[r.PlayerID] = len(entries)
			entries = append(entries, e)
		case r.Score > entries[i].Score:
			entries[i] = e
		}
	}

	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return b.Score - a.Score
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

func percentage(score, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(score)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total))).Round(2)
}

// Invalidate drops the cached view so the next Rank reads the ledger. It bumps the
// cache version first, so a rebuild that read the ledger before the bump is not stored.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	if err := s.redis.Incr(ctx, s.getVersionKey()).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard: bump version: %w", err)
	}
	if err := s.redis.Del(ctx, s.getLeaderboardKey()).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}

// version reads the cache version. A missing key is version "0".
func (s *Service) version(ctx context.Context) (string, bool) {
	if s.redis == nil {
		return "", false
	}

	v, err := s.redis.Get(ctx, s.getVersionKey()).Result()
	switch {
	case stderrors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		slog.WarnContext(ctx, "leaderboard: read cache version failed", "error", err)
		return "", false
	}
	return v, true
}

func (s *Service) cached(ctx context.Context) (*domain.Leaderboard, bool) {
	if s.redis == nil {
		return nil, false
	}

	b, err := s.redis.Get(ctx, s.getLeaderboardKey()).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "leaderboard: read cache failed", "error", err)
		}
		return nil, false
	}

	var l domain.Leaderboard
	if err := json.Unmarshal(b, &l); err != nil {
		slog.WarnContext(ctx, "leaderboard: decode cache failed", "error", err)
		return nil, false
	}

	return &l, true
}

// storeIfCurrent sets KEYS[1] only while KEYS[2] still holds the version read before the rebuild.
var storeIfCurrent = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func (s *Service) store(ctx context.Context, l *domain.Leaderboard, version string) {
	if s.redis == nil {
		return
	}

	b, err := json.Marshal(l)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: encode cache failed", "error", err)
		return
	}

	keys := []string{s.getLeaderboardKey(), s.getVersionKey()}
	stored, err := storeIfCurrent.Run(ctx, s.redis, keys, version, b, s.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		slog.WarnContext(ctx, "leaderboard: write cache failed", "error", err)
	case stored == 0:
		slog.DebugContext(ctx, "leaderboard: skip stale cache fill", "version", version)
	}
}

func (s *Service) getLeaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) getVersionKey() string {
	return fmt.Sprintf("%s:leaderboard:version", s.prefix)
}
