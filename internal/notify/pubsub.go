// Package notify delivers engine messages to players over Redis pubsub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
)

const (
	EventMessageSent   = "message.sent"
	EventMessageEdited = "message.edited"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Message struct {
		Ref     string   `json:"ref"`
		Text    string   `json:"text"`
		Options []Option `json:"options,omitempty"`
	}

	Option struct {
		Label  string `json:"label"`
		Action string `json:"action"`
	}

	Edit struct {
		Ref  string `json:"ref"`
		Text string `json:"text"`
	}
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher publishes every message on the player's channel `{prefix}:user:{id}`.
type Publisher struct {
	redis  Redis
	prefix string
}

func NewPublisher(r Redis, prefix string) *Publisher {
	return &Publisher{redis: r, prefix: prefix}
}

func (p *Publisher) Send(ctx context.Context, to domain.PlayerID, m domain.Message) (domain.MessageRef, error) {
	ref, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("pubsub: new ref: %w", err)
	}

	data := Message{
		Ref:     ref.String(),
		Text:    m.Text,
		Options: make([]Option, 0, len(m.Options)),
	}
	for _, o := range m.Options {
		data.Options = append(data.Options, Option{Label: o.Label, Action: o.Action.String()})
	}

	if err := p.publish(ctx, to, EventMessageSent, data); err != nil {
		return "", err
	}

	return domain.MessageRef(data.Ref), nil
}

func (p *Publisher) Edit(ctx context.Context, to domain.PlayerID, ref domain.MessageRef, text string) error {
	return p.publish(ctx, to, EventMessageEdited, Edit{Ref: string(ref), Text: text})
}

func (p *Publisher) publish(ctx context.Context, to domain.PlayerID, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return p.redis.Publish(ctx, Channel(p.prefix, to), b).Err()
}

// Channel returns the pubsub channel of a player.
func Channel(prefix string, to domain.PlayerID) string {
	return fmt.Sprintf("%s:user:%d", prefix, to)
}
