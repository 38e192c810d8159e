package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/victornm/trivia/internal/domain"
)

// Main keyboard buttons.
const (
	buttonNewQuiz     = "New quiz"
	buttonChangeMode  = "Change mode"
	buttonLeaderboard = "Leaderboard"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonNewQuiz),
			tgbotapi.NewKeyboardButton(buttonChangeMode),
			tgbotapi.NewKeyboardButton(buttonLeaderboard),
		),
	)
}

func modeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return optionsKeyboard([]domain.Option{
		{Label: "Single player", Action: domain.Action{Kind: domain.ActionModeSingle}},
		{Label: "PvP", Action: domain.Action{Kind: domain.ActionModePvP}},
	})
}

// quizKeyboard lists one quiz per row.
func quizKeyboard(quizzes []domain.Quiz) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(quizzes))
	for _, q := range quizzes {
		a := domain.Action{Kind: domain.ActionSelectQuiz, QuizID: q.QuizID}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(q.Name, a.String())))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// optionsKeyboard renders options side by side on one row.
func optionsKeyboard(options []domain.Option) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, o := range options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Action.String()))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
