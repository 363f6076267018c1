package agent

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/crmlens/engine/internal/agent/model"
)

// MessagesManager turns stored conversation turns into prompt context so a
// follow-up question can refer to earlier answers.
type MessagesManager struct {
	repo     model.ConversationRepository
	maxTurns int
}

func NewMessagesManager(repo model.ConversationRepository, cfg model.ConversationConfig) *MessagesManager {
	return &MessagesManager{repo: repo, maxTurns: cfg.MaxContextTurns}
}

// BuildContext loads the conversation and renders its most recent turns as a
// context block. An empty conversation renders to an empty string.
func (m *MessagesManager) BuildContext(ctx context.Context, conversationID string) (string, error) {
	history, err := m.repo.LoadHistory(ctx, conversationID)
	if err != nil {
		return "", err
	}

	recent := trimTail(history.Messages, m.maxTurns)
	if len(recent) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range recent {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	return b.String(), nil
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
