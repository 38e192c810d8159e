// Package telegram is the chat transport of the quiz engine.
package telegram

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/session"
)

const (
	textWelcome            = "Hi! Choose the quiz mode:"
	textChooseMode         = "Choose the quiz mode:"
	textChooseQuiz         = "Choose a quiz:"
	textNoQuizzes          = "There are no quizzes yet."
	textMenu               = "Use the menu below at any time."
	textLeaderboardEmpty   = "The leaderboard is empty so far."
	textLeaderboardCleared = "The leaderboard was cleared."
	textNoSession          = "You are not playing right now. Use /start to choose a mode."
	textUnavailable        = "Something went wrong, please try again later."
)

type Sessions interface {
	StartSingle(ctx context.Context, p domain.Player, quizID int64) error
	SubmitAnswer(ctx context.Context, p domain.Player, text string) error
	JoinQueue(ctx context.Context, p domain.Player) (*session.JoinQueueResponse, error)
	LeaveQueue(ctx context.Context, p domain.PlayerID) error
}

type Quizzes interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

type Leaderboard interface {
	Rank(ctx context.Context) (*domain.Leaderboard, error)
}

type Scores interface {
	Clear(ctx context.Context) error
}

type Config struct {
	API         Sender
	Sessions    Sessions
	Quizzes     Quizzes
	Leaderboard Leaderboard
	Scores      Scores
}

// Bot turns Telegram updates into engine calls.
type Bot struct {
	api         Sender
	sessions    Sessions
	quizzes     Quizzes
	leaderboard Leaderboard
	scores      Scores
}

func NewBot(c Config) *Bot {
	return &Bot{
		api:         c.API,
		sessions:    c.Sessions,
		quizzes:     c.Quizzes,
		leaderboard: c.Leaderboard,
		scores:      c.Scores,
	}
}

// Run handles updates one at a time until ctx is done or updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	slog.InfoContext(ctx, "telegram: bot started")

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.Handle(ctx, u)
		}
	}
}

func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	p := player(msg.Chat, msg.From)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(ctx, p.ID, textMenu, mainKeyboard())
			b.reply(ctx, p.ID, textWelcome, modeKeyboard())
		case "quiz":
			b.showQuizzes(ctx, p.ID)
		case "leaderboard":
			b.showLeaderboard(ctx, p.ID)
		case "clear_leaderboard":
			b.clearLeaderboard(ctx, p.ID)
		}
		return
	}

	switch msg.Text {
	case buttonNewQuiz:
		b.showQuizzes(ctx, p.ID)
	case buttonChangeMode:
		b.reply(ctx, p.ID, textChooseMode, modeKeyboard())
	case buttonLeaderboard:
		b.showLeaderboard(ctx, p.ID)
	case "":
	default:
		err := b.sessions.SubmitAnswer(ctx, p, msg.Text)
		if stderrors.Is(err, errors.ErrNoSession) {
			b.reply(ctx, p.ID, textNoSession, nil)
			return
		}
		logFailure(ctx, "answer", p.ID, err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge so the client stops the button spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		slog.WarnContext(ctx, "telegram: answer callback failed", "error", err)
	}

	if cb.Message == nil {
		return
	}
	p := player(cb.Message.Chat, cb.From)

	a, err := domain.ParseAction(cb.Data)
	if err != nil {
		slog.WarnContext(ctx, "telegram: unknown callback", "player", p.ID, "data", cb.Data, "error", err)
		return
	}

	switch a.Kind {
	case domain.ActionModeSingle, domain.ActionChooseQuiz:
		b.showQuizzes(ctx, p.ID)
	case domain.ActionModePvP:
		_, err := b.sessions.JoinQueue(ctx, p)
		logFailure(ctx, "join queue", p.ID, err)
	case domain.ActionLeaveQueue:
		logFailure(ctx, "leave queue", p.ID, b.sessions.LeaveQueue(ctx, p.ID))
	case domain.ActionSelectQuiz, domain.ActionReplayQuiz:
		logFailure(ctx, "start quiz", p.ID, b.sessions.StartSingle(ctx, p, a.QuizID))
	}
}

func (b *Bot) showQuizzes(ctx context.Context, to domain.PlayerID) {
	qs, err := b.quizzes.ListQuizzes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "telegram: list quizzes failed", "player", to, "error", err)
		b.reply(ctx, to, textUnavailable, nil)
		return
	}

	if len(qs) == 0 {
		b.reply(ctx, to, textNoQuizzes, nil)
		return
	}
	b.reply(ctx, to, textChooseQuiz, quizKeyboard(qs))
}

func (b *Bot) showLeaderboard(ctx context.Context, to domain.PlayerID) {
	l, err := b.leaderboard.Rank(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "telegram: rank failed", "player", to, "error", err)
		b.reply(ctx, to, textUnavailable, nil)
		return
	}
	b.reply(ctx, to, FormatLeaderboard(l), nil)
}

func (b *Bot) clearLeaderboard(ctx context.Context, to domain.PlayerID) {
	if err := b.scores.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "telegram: clear leaderboard failed", "player", to, "error", err)
		b.reply(ctx, to, textUnavailable, nil)
		return
	}
	b.reply(ctx, to, textLeaderboardCleared, nil)
}

func (b *Bot) reply(ctx context.Context, to domain.PlayerID, text string, markup any) {
	msg := tgbotapi.NewMessage(int64(to), text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	if _, err := b.api.Send(msg); err != nil {
		slog.WarnContext(ctx, "telegram: send failed", "to", to, "error", err)
	}
}

// FormatLeaderboard renders one line per ranked player.
func FormatLeaderboard(l *domain.Leaderboard) string {
	if l == nil || len(l.Entries) == 0 {
		return textLeaderboardEmpty
	}

	var sb strings.Builder
	sb.WriteString("Leaderboard:\n")
	for _, e := range l.Entries {
		name := domain.Player{ID: e.PlayerID, Name: e.Username}.DisplayName()
		fmt.Fprintf(&sb, "%d. %s - %s: %d/%d (%s%%)\n",
			e.Rank, name, e.QuizName, e.Score, e.TotalQuestions, e.Percentage.StringFixed(2))
	}
	return sb.String()
}

func player(chat *tgbotapi.Chat, from *tgbotapi.User) domain.Player {
	p := domain.Player{}
	if chat != nil {
		p.ID = domain.PlayerID(chat.ID)
	}
	if from != nil {
		p.Name = from.UserName
		if p.ID == 0 {
			p.ID = domain.PlayerID(from.ID)
		}
	}
	return p
}

// logFailure logs engine errors. Coded errors were already reported to the player by the engine.
func logFailure(ctx context.Context, action string, p domain.PlayerID, err error) {
	if err == nil {
		return
	}

	var e *errors.Error
	if stderrors.As(err, &e) && e.Code != errors.CodeInternal {
		slog.DebugContext(ctx, "telegram: "+action+" rejected", "player", p, "reason", e.Reason)
		return
	}
	slog.ErrorContext(ctx, "telegram: "+action+" failed", "player", p, "error", err)
}
