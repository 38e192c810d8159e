package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/victornm/trivia/internal/domain"
)

// Sender is the part of tgbotapi.BotAPI used by the transport.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier delivers engine messages as Telegram messages. Players are private chats,
// so a player id is also its chat id.
type Notifier struct {
	api Sender
}

func NewNotifier(api Sender) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Send(_ context.Context, to domain.PlayerID, m domain.Message) (domain.MessageRef, error) {
	msg := tgbotapi.NewMessage(int64(to), m.Text)
	if len(m.Options) > 0 {
		msg.ReplyMarkup = optionsKeyboard(m.Options)
	}

	sent, err := n.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram: send to %d: %w", to, err)
	}

	return domain.MessageRef(strconv.Itoa(sent.MessageID)), nil
}

func (n *Notifier) Edit(_ context.Context, to domain.PlayerID, ref domain.MessageRef, text string) error {
	id, err := strconv.Atoi(string(ref))
	if err != nil {
		return fmt.Errorf("telegram: invalid message ref %q: %w", ref, err)
	}

	if _, err := n.api.Send(tgbotapi.NewEditMessageText(int64(to), id, text)); err != nil {
		return fmt.Errorf("telegram: edit %d in %d: %w", id, to, err)
	}
	return nil
}
