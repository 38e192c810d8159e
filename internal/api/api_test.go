package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/session"
)

func TestAPI(t *testing.T) {
	type call struct {
		method, path, body string
	}

	tests := map[string]struct {
		arrange func(f *fakes)
		call    call
		code    int
		assert  func(t *testing.T, f *fakes, body string)
	}{
		"list quizzes": {
			arrange: func(f *fakes) {
				f.quizzes = []domain.Quiz{{QuizID: 1, Name: "Capitals"}, {QuizID: 2, Name: "Animals"}}
			},
			call: call{http.MethodGet, "/quizzes", ""},
			code: http.StatusOK,
			assert: func(t *testing.T, _ *fakes, body string) {
				assert.JSONEq(t, `[{"id":1,"name":"Capitals"},{"id":2,"name":"Animals"}]`, body)
			},
		},

		"leaderboard is rendered with percentages": {
			arrange: func(f *fakes) {
				f.leaderboard = &domain.Leaderboard{Entries: []domain.LeaderboardEntry{
					{Rank: 1, PlayerID: 7, Username: "A", QuizName: "Capitals", Score: 5, TotalQuestions: 6, Percentage: decimal.RequireFromString("83.33")},
				}}
			},
			call: call{http.MethodGet, "/leaderboard", ""},
			code: http.StatusOK,
			assert: func(t *testing.T, _ *fakes, body string) {
				assert.JSONEq(t, `[{"rank":1,"player_id":7,"username":"A","quiz_name":"Capitals","score":5,"total_questions":6,"percentage":"83.33"}]`, body)
			},
		},

		"clear leaderboard": {
			call: call{http.MethodDelete, "/leaderboard", ""},
			code: http.StatusNoContent,
			assert: func(t *testing.T, f *fakes, _ string) {
				assert.True(t, f.cleared)
			},
		},

		"start single session": {
			call: call{http.MethodPost, "/players/42/single", `{"quiz_id":3,"username":"alice"}`},
			code: http.StatusAccepted,
			assert: func(t *testing.T, f *fakes, _ string) {
				assert.Equal(t, domain.Player{ID: 42, Name: "alice"}, f.player)
				assert.Equal(t, int64(3), f.quizID)
			},
		},

		"empty quiz is a failed precondition": {
			arrange: func(f *fakes) {
				f.err = errors.New(errors.CodeFailedPrecondition, errors.WithReason(errors.ReasonEmptyQuiz))
			},
			call: call{http.MethodPost, "/players/42/single", `{"quiz_id":3}`},
			code: http.StatusUnprocessableEntity,
			assert: func(t *testing.T, _ *fakes, body string) {
				assert.Contains(t, body, errors.ReasonEmptyQuiz)
			},
		},

		"invalid player id": {
			call: call{http.MethodPost, "/players/abc/answers", `{"text":"Paris"}`},
			code: http.StatusBadRequest,
		},

		"missing answer text": {
			call: call{http.MethodPost, "/players/42/answers", `{}`},
			code: http.StatusBadRequest,
		},

		"submit answer": {
			call: call{http.MethodPost, "/players/42/answers", `{"text":"Paris"}`},
			code: http.StatusAccepted,
			assert: func(t *testing.T, f *fakes, _ string) {
				assert.Equal(t, "Paris", f.text)
			},
		},

		"answer without a session": {
			arrange: func(f *fakes) {
				f.err = errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonNoSession))
			},
			call: call{http.MethodPost, "/players/42/answers", `{"text":"Paris"}`},
			code: http.StatusNotFound,
		},

		"join queue without a body": {
			call: call{http.MethodPost, "/players/42/queue", ""},
			code: http.StatusOK,
			assert: func(t *testing.T, _ *fakes, body string) {
				assert.JSONEq(t, `{"status":"queued"}`, body)
			},
		},

		"join queue and get paired": {
			arrange: func(f *fakes) {
				f.join = &session.JoinQueueResponse{
					Status:   session.JoinPaired,
					MatchID:  "m1",
					Opponent: domain.Player{ID: 1, Name: "bob"},
				}
			},
			call: call{http.MethodPost, "/players/42/queue", `{"username":"alice"}`},
			code: http.StatusOK,
			assert: func(t *testing.T, f *fakes, body string) {
				assert.Equal(t, "alice", f.player.Name)
				assert.JSONEq(t, `{"status":"paired","match_id":"m1","opponent":"bob"}`, body)
			},
		},

		"join queue twice is a conflict": {
			arrange: func(f *fakes) {
				f.err = errors.New(errors.CodeAlreadyExists, errors.WithReason(errors.ReasonAlreadyQueued))
			},
			call: call{http.MethodPost, "/players/42/queue", ""},
			code: http.StatusConflict,
		},

		"leave queue": {
			call: call{http.MethodDelete, "/players/42/queue", ""},
			code: http.StatusNoContent,
		},

		"current session": {
			arrange: func(f *fakes) {
				f.ref = &session.Ref{Kind: session.KindMatch, MatchID: "m1", Opponent: domain.Player{ID: 1}, Index: 2, Total: 10, Score: 1}
			},
			call: call{http.MethodGet, "/players/42/session", ""},
			code: http.StatusOK,
			assert: func(t *testing.T, _ *fakes, body string) {
				assert.JSONEq(t, `{"kind":"pvp","match_id":"m1","opponent":"None","index":2,"total":10,"score":1}`, body)
			},
		},

		"no current session": {
			call: call{http.MethodGet, "/players/42/session", ""},
			code: http.StatusNotFound,
		},

		"end session": {
			call: call{http.MethodDelete, "/players/42/session", ""},
			code: http.StatusNoContent,
			assert: func(t *testing.T, f *fakes, _ string) {
				assert.Equal(t, domain.PlayerID(42), f.player.ID)
			},
		},

		"storage failure is unavailable": {
			arrange: func(f *fakes) {
				f.err = errors.Unavailable(context.DeadlineExceeded, "list quizzes")
			},
			call: call{http.MethodGet, "/quizzes", ""},
			code: http.StatusServiceUnavailable,
		},
	}

	gin.SetMode(gin.TestMode)

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			f := &fakes{join: &session.JoinQueueResponse{Status: session.JoinQueued}}
			if tt.arrange != nil {
				tt.arrange(f)
			}

			e := gin.New()
			api.New(api.Config{Engine: e, Sessions: f, Quizzes: f, Leaderboard: f, Scores: f})

			req := httptest.NewRequest(tt.call.method, tt.call.path, strings.NewReader(tt.call.body))
			if tt.call.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, req)

			require.Equal(t, tt.code, w.Code, w.Body.String())
			if w.Code >= http.StatusBadRequest {
				var apiErr errors.Error
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			}
			if tt.assert != nil {
				tt.assert(t, f, w.Body.String())
			}
		})
	}
}

type fakes struct {
	err error

	quizzes     []domain.Quiz
	leaderboard *domain.Leaderboard
	join        *session.JoinQueueResponse
	ref         *session.Ref

	player  domain.Player
	quizID  int64
	text    string
	cleared bool
}

func (f *fakes) StartSingle(_ context.Context, p domain.Player, quizID int64) error {
	f.player, f.quizID = p, quizID
	return f.err
}

func (f *fakes) SubmitAnswer(_ context.Context, p domain.Player, text string) error {
	f.player, f.text = p, text
	return f.err
}

func (f *fakes) JoinQueue(_ context.Context, p domain.Player) (*session.JoinQueueResponse, error) {
	f.player = p
	if f.err != nil {
		return nil, f.err
	}
	return f.join, nil
}

func (f *fakes) LeaveQueue(_ context.Context, p domain.PlayerID) error {
	f.player = domain.Player{ID: p}
	return f.err
}

func (f *fakes) End(_ context.Context, p domain.Player) error {
	f.player = p
	return f.err
}

func (f *fakes) Current(domain.PlayerID) (session.Ref, bool) {
	if f.ref == nil {
		return session.Ref{}, false
	}
	return *f.ref, true
}

func (f *fakes) ListQuizzes(context.Context) ([]domain.Quiz, error) {
	return f.quizzes, f.err
}

func (f *fakes) Rank(context.Context) (*domain.Leaderboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.leaderboard == nil {
		return &domain.Leaderboard{}, nil
	}
	return f.leaderboard, nil
}

func (f *fakes) Clear(context.Context) error {
	f.cleared = true
	return f.err
}
