package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageRef identifies a delivered message so it can be edited later.
type MessageRef string

// Message is an outbound message. Options are rendered by the transport, e.g. as inline buttons.
type Message struct {
	Text    string
	Options []Option
}

type Option struct {
	Label  string
	Action Action
}

type ActionKind string

const (
	ActionModeSingle ActionKind = "single"
	ActionModePvP    ActionKind = "pvp"
	ActionChooseQuiz ActionKind = "newquiz"
	ActionLeaveQueue ActionKind = "leave_queue"
	ActionSelectQuiz ActionKind = "quiz"
	ActionReplayQuiz ActionKind = "replay"
)

// Action is a transport-neutral user intent attached to an option.
type Action struct {
	Kind   ActionKind
	QuizID int64
}

// String encodes the action into a compact token, e.g. "replay_3" or "pvp".
func (a Action) String() string {
	switch a.Kind {
	case ActionSelectQuiz, ActionReplayQuiz:
		return fmt.Sprintf("%s_%d", a.Kind, a.QuizID)
	default:
		return string(a.Kind)
	}
}

// ParseAction decodes a token produced by Action.String.
func ParseAction(s string) (Action, error) {
	switch k := ActionKind(s); k {
	case ActionModeSingle, ActionModePvP, ActionChooseQuiz, ActionLeaveQueue:
		return Action{Kind: k}, nil
	}

	kind, id, ok := strings.Cut(s, "_")
	if !ok {
		return Action{}, fmt.Errorf("unknown action %q", s)
	}

	switch k := ActionKind(kind); k {
	case ActionSelectQuiz, ActionReplayQuiz:
		quizID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("action %q: invalid quiz id: %w", s, err)
		}
		return Action{Kind: k, QuizID: quizID}, nil
	}

	return Action{}, fmt.Errorf("unknown action %q", s)
}
