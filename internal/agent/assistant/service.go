// Package assistant provides the chat assistant backed by a hosted LLM.
package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/feichai0017/docformat/pkg/logger"
)

// DefaultFallback is shown to the user whenever the model cannot be reached.
const DefaultFallback = "抱歉，我现在无法回答。请稍后再试。"

// ErrEmptyConversation rejects a chat without any user content.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Completer returns the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Reply 助手回复; Fallback marks a canned answer after a failed request.
type Reply struct {
	Content  string `json:"content"`
	Fallback bool   `json:"fallback"`
}

type Service struct {
	completer Completer
	fallback  string
	logger    logger.Logger
}

func NewService(completer Completer, fallback string, log logger.Logger) *Service {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Service{
		completer: completer,
		fallback:  fallback,
		logger:    log.Named("assistant"),
	}
}

// Chat never surfaces transport failures; they become the fallback reply.
func (s *Service) Chat(ctx context.Context, messages []Message) (*Reply, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyConversation
	}
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			return nil, ErrEmptyConversation
		}
	}

	content, err := s.completer.Complete(ctx, messages)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			s.logger.Warn("Assistant unavailable, using fallback",
				logger.Int("statusCode", te.StatusCode),
				logger.Error(err),
			)
		} else {
			s.logger.Error("Assistant request failed", logger.Error(err))
		}
		return &Reply{Content: s.fallback, Fallback: true}, nil
	}
	return &Reply{Content: content}, nil
}

// Ask sends a single user message.
func (s *Service) Ask(ctx context.Context, question string) (*Reply, error) {
	return s.Chat(ctx, []Message{{Role: RoleUser, Content: question}})
}
