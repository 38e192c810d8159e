//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/notify"
	"github.com/victornm/trivia/internal/storage"
)

// The server under test runs with the pubsub notifier, redis.pubsub.prefix=local and the default catalogue.
const (
	httpAddr  = "http://localhost:8080"
	grpcAddr  = "localhost:9090"
	redisAddr = "localhost:6379"
	prefix    = "local"
)

func TestHealth(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestSingle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		rc     = makeRedis(t)
		key    = answerKey()
		player = newPlayerID()
		inbox  = subscribe(t, rc, player)
		quiz   = findQuiz(t, ctx, "Capitals")
	)

	call(t, ctx, http.MethodPost, fmt.Sprintf("/players/%d/single", player),
		api.StartSingleRequest{QuizID: quiz, Username: "u1"}, http.StatusAccepted, nil)

	for text := range inbox {
		t.Logf("u1 <- %q", text)

		if strings.HasPrefix(text, "Quiz finished") {
			break
		}
		answer, ok := key[text]
		if !ok {
			continue
		}
		call(t, ctx, http.MethodPost, fmt.Sprintf("/players/%d/answers", player),
			api.SubmitAnswerRequest{Text: answer, Username: "u1"}, http.StatusAccepted, nil)
	}

	// The cached leaderboard is invalidated asynchronously.
	for attempt := 0; attempt < 20; attempt++ {
		var entries []api.LeaderboardEntry
		call(t, ctx, http.MethodGet, "/leaderboard", nil, http.StatusOK, &entries)
		for _, e := range entries {
			if e.PlayerID == int64(player) {
				assert.Equal(t, e.TotalQuestions, e.Score, "every answer was right")
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("player %d is missing from the leaderboard", player)
}

func TestPvP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var (
		rc      = makeRedis(t)
		key     = answerKey()
		players = []domain.PlayerID{newPlayerID(), newPlayerID() + 1}
		names   = []string{"u1", "u2"}
	)

	var eg errgroup.Group
	for i, p := range players {
		inbox := subscribe(t, rc, p)

		var resp api.JoinQueueResponse
		call(t, ctx, http.MethodPost, fmt.Sprintf("/players/%d/queue", p),
			api.JoinQueueRequest{Username: names[i]}, http.StatusOK, &resp)
		t.Logf("%s joined the queue: %+v", names[i], resp)

		// Both players race for every question, only one of them is credited.
		eg.Go(func() error {
			for text := range inbox {
				t.Logf("%s <- %q", names[i], text)

				if strings.HasPrefix(text, "Quiz finished") {
					return nil
				}
				answer, ok := key[text]
				if !ok {
					continue
				}
				if err := post(ctx, fmt.Sprintf("/players/%d/answers", p), api.SubmitAnswerRequest{Text: answer}); err != nil {
					return fmt.Errorf("%s submit answer: %w", names[i], err)
				}
			}
			return fmt.Errorf("%s: inbox closed before the result", names[i])
		})
	}

	require.NoError(t, eg.Wait())
}

// answerKey maps every catalogue prompt to its answer.
func answerKey() map[string]string {
	key := make(map[string]string)
	for _, q := range storage.DefaultQuizzes {
		for _, qq := range q.Questions {
			key[qq.Prompt] = qq.Answer
		}
	}
	return key
}

func newPlayerID() domain.PlayerID {
	return domain.PlayerID(time.Now().UnixNano() % 1_000_000_000)
}

func findQuiz(t *testing.T, ctx context.Context, name string) int64 {
	var quizzes []api.Quiz
	call(t, ctx, http.MethodGet, "/quizzes", nil, http.StatusOK, &quizzes)
	for _, q := range quizzes {
		if q.Name == name {
			return q.ID
		}
	}
	t.Fatalf("quiz %q not found", name)
	return 0
}

func call(t *testing.T, ctx context.Context, method, path string, body any, want int, out any) {
	t.Helper()

	resp, err := do(ctx, method, path, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, want, resp.StatusCode, "%s %s", method, path)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func post(ctx context.Context, path string, body any) error {
	resp, err := do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, httpAddr+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return http.DefaultClient.Do(req)
}

// subscribe yields the text of every message sent to the player.
func subscribe(t *testing.T, rc redis.UniversalClient, p domain.PlayerID) <-chan string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rc.Subscribe(ctx, notify.Channel(prefix, p))
	t.Cleanup(func() { sub.Close() })

	// Wait for the confirmation so no message published afterwards is missed.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	c := make(chan string, 64)
	go func() {
		defer close(c)

		for msg := range sub.Channel() {
			var n struct {
				Event string         `json:"event"`
				Data  notify.Message `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}
			if n.Event != notify.EventMessageSent {
				continue
			}

			c <- n.Data.Text
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{redisAddr},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}
