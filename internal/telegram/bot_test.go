package telegram_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/telegram"
)

func TestBot_Handle(t *testing.T) {
	tests := map[string]struct {
		arrange func(f *fakes)
		update  tgbotapi.Update
		assert  func(t *testing.T, f *fakes)
	}{
		"start shows the menu and the mode choice": {
			update: command("start"),
			assert: func(t *testing.T, f *fakes) {
				require.Len(t, f.sent, 2)
				_, ok := f.sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
				assert.True(t, ok, "main keyboard expected")
				assert.Equal(t, [][]string{{"single", "pvp"}}, callbacks(t, f.sent[1]))
			},
		},

		"new quiz lists quizzes one per row": {
			arrange: func(f *fakes) {
				f.quizzes = []domain.Quiz{{QuizID: 1, Name: "Capitals"}, {QuizID: 2, Name: "Animals"}}
			},
			update: text("New quiz"),
			assert: func(t *testing.T, f *fakes) {
				require.Len(t, f.sent, 1)
				assert.Equal(t, [][]string{{"quiz_1"}, {"quiz_2"}}, callbacks(t, f.sent[0]))
			},
		},

		"no quizzes": {
			update: command("quiz"),
			assert: func(t *testing.T, f *fakes) {
				require.Len(t, f.sent, 1)
				assert.Equal(t, "There are no quizzes yet.", f.sent[0].Text)
			},
		},

		"selecting a quiz starts a single session": {
			update: callback("quiz_3"),
			assert: func(t *testing.T, f *fakes) {
				assert.Equal(t, []string{"start 3"}, f.calls)
				assert.Equal(t, 1, f.acked)
			},
		},

		"replay starts the same quiz again": {
			update: callback("replay_2"),
			assert: func(t *testing.T, f *fakes) {
				assert.Equal(t, []string{"start 2"}, f.calls)
			},
		},

		"pvp joins the queue": {
			update: callback("pvp"),
			assert: func(t *testing.T, f *fakes) {
				assert.Equal(t, []string{"join"}, f.calls)
			},
		},

		"leave queue": {
			update: callback("leave_queue"),
			assert: func(t *testing.T, f *fakes) {
				assert.Equal(t, []string{"leave"}, f.calls)
			},
		},

		"unknown callbacks are acknowledged and ignored": {
			update: callback("bogus"),
			assert: func(t *testing.T, f *fakes) {
				assert.Empty(t, f.calls)
				assert.Equal(t, 1, f.acked)
			},
		},

		"free text is an answer": {
			update: text("Paris"),
			assert: func(t *testing.T, f *fakes) {
				assert.Equal(t, []string{"answer Paris"}, f.calls)
				assert.Empty(t, f.sent)
			},
		},

		"answer without a session gets a hint": {
			arrange: func(f *fakes) {
				f.err = errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonNoSession))
			},
			update: text("Paris"),
			assert: func(t *testing.T, f *fakes) {
				require.Len(t, f.sent, 1)
				assert.Contains(t, f.sent[0].Text, "/start")
			},
		},

		"leaderboard": {
			arrange: func(f *fakes) {
				f.leaderboard = &domain.Leaderboard{Entries: []domain.LeaderboardEntry{
					{Rank: 1, PlayerID: 1, Username: "alice", QuizName: "Capitals", Score: 5, TotalQuestions: 6, Percentage: decimal.RequireFromString("83.33")},
				}}
			},
			update: text("Leaderboard"),
			assert: func(t *testing.T, f *fakes) {
				require.Len(t, f.sent, 1)
				assert.Equal(t, "Leaderboard:\n1. alice - Capitals: 5/6 (83.33%)\n", f.sent[0].Text)
			},
		},

		"clear leaderboard": {
			update: command("clear_leaderboard"),
			assert: func(t *testing.T, f *fakes) {
				assert.True(t, f.cleared)
				require.Len(t, f.sent, 1)
				assert.Equal(t, "The leaderboard was cleared.", f.sent[0].Text)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := new(fakes)
			if tt.arrange != nil {
				tt.arrange(f)
			}

			b := telegram.NewBot(telegram.Config{API: f, Sessions: f, Quizzes: f, Leaderboard: f, Scores: f})
			b.Handle(context.Background(), tt.update)

			tt.assert(t, f)
		})
	}
}

func TestFormatLeaderboard(t *testing.T) {
	assert.Equal(t, "The leaderboard is empty so far.", telegram.FormatLeaderboard(&domain.Leaderboard{}))

	got := telegram.FormatLeaderboard(&domain.Leaderboard{Entries: []domain.LeaderboardEntry{
		{Rank: 1, PlayerID: 1, Username: "alice", QuizName: "Capitals", Score: 5, TotalQuestions: 6, Percentage: decimal.RequireFromString("83.33")},
		{Rank: 2, PlayerID: 2, QuizName: "Plants", Score: 1, TotalQuestions: 4, Percentage: decimal.RequireFromString("25")},
	}})
	assert.Equal(t, "Leaderboard:\n1. alice - Capitals: 5/6 (83.33%)\n2. None - Plants: 1/4 (25.00%)\n", got)
}

func TestNotifier(t *testing.T) {
	f := new(fakes)
	n := telegram.NewNotifier(f)

	ref, err := n.Send(context.Background(), 42, domain.Message{
		Text:    "Play again?",
		Options: []domain.Option{{Label: "Play again", Action: domain.Action{Kind: domain.ActionReplayQuiz, QuizID: 3}}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRef("1"), ref)
	require.Len(t, f.sent, 1)
	assert.Equal(t, int64(42), f.sent[0].ChatID)
	assert.Equal(t, [][]string{{"replay_3"}}, callbacks(t, f.sent[0]))

	require.NoError(t, n.Edit(context.Background(), 42, ref, "Next question in 2..."))
	require.Len(t, f.edits, 1)
	assert.Equal(t, 1, f.edits[0].MessageID)
	assert.Equal(t, "Next question in 2...", f.edits[0].Text)

	assert.Error(t, n.Edit(context.Background(), 42, "not-a-number", "x"))
}

func command(name string) tgbotapi.Update {
	u := text("/" + name)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}}
	return u
}

func text(s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: s,
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{ID: 42, UserName: "alice"},
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		From:    &tgbotapi.User{ID: 42, UserName: "alice"},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 42}},
	}}
}

func callbacks(t *testing.T, m tgbotapi.MessageConfig) [][]string {
	t.Helper()

	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "inline keyboard expected")

	var rows [][]string
	for _, r := range kb.InlineKeyboard {
		var row []string
		for _, b := range r {
			require.NotNil(t, b.CallbackData)
			row = append(row, *b.CallbackData)
		}
		rows = append(rows, row)
	}
	return rows
}

type fakes struct {
	mu sync.Mutex

	err         error
	quizzes     []domain.Quiz
	leaderboard *domain.Leaderboard

	sent    []tgbotapi.MessageConfig
	edits   []tgbotapi.EditMessageTextConfig
	acked   int
	calls   []string
	cleared bool
}

func (f *fakes) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakes) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acked++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakes) call(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, s)
}

func (f *fakes) StartSingle(_ context.Context, _ domain.Player, quizID int64) error {
	f.call("start " + strconv.FormatInt(quizID, 10))
	return f.err
}

func (f *fakes) SubmitAnswer(_ context.Context, _ domain.Player, text string) error {
	f.call("answer " + text)
	return f.err
}

func (f *fakes) JoinQueue(context.Context, domain.Player) (*session.JoinQueueResponse, error) {
	f.call("join")
	return &session.JoinQueueResponse{Status: session.JoinQueued}, f.err
}

func (f *fakes) LeaveQueue(context.Context, domain.PlayerID) error {
	f.call("leave")
	return f.err
}

func (f *fakes) ListQuizzes(context.Context) ([]domain.Quiz, error) {
	return f.quizzes, f.err
}

func (f *fakes) Rank(context.Context) (*domain.Leaderboard, error) {
	if f.leaderboard == nil {
		return &domain.Leaderboard{}, f.err
	}
	return f.leaderboard, f.err
}

func (f *fakes) Clear(context.Context) error {
	f.cleared = true
	return f.err
}
