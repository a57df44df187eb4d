package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

// ChatModelBackend completes turns with an eino chat model. Authentication is
// part of the model's own configuration, so the per-request credential is unused.
type ChatModelBackend struct {
	chatModel model.ChatModel
}

// NewChatModelBackend wraps chatModel.
func NewChatModelBackend(chatModel model.ChatModel) *ChatModelBackend {
	return &ChatModelBackend{chatModel: chatModel}
}

func (b *ChatModelBackend) SelfAuthenticating() bool { return true }

func (b *ChatModelBackend) Complete(ctx context.Context, turns []chat.Turn, _ string) (string, error) {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.OriginUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.OriginAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}

	response, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if response == nil {
		return "", errors.New("chat model returned no message")
	}
	return response.Content, nil
}
