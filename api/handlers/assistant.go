package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/docformat/internal/agent/assistant"
	"github.com/feichai0017/docformat/pkg/logger"
)

// ChatRequest accepts either a full conversation or a single message.
type ChatRequest struct {
	Messages []assistant.Message `json:"messages"`
	Message  string              `json:"message"`
}

// Chatter is the assistant surface used by the handler.
type Chatter interface {
	Chat(ctx context.Context, messages []assistant.Message) (*assistant.Reply, error)
}

type AssistantHandler struct {
	service Chatter
	logger  logger.Logger
}

func NewAssistantHandler(service Chatter, log logger.Logger) *AssistantHandler {
	return &AssistantHandler{service: service, logger: log}
}

// Chat 与助手对话
func (h *AssistantHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	messages := req.Messages
	if req.Message != "" {
		messages = append(messages, assistant.Message{Role: assistant.RoleUser, Content: req.Message})
	}

	reply, err := h.service.Chat(c.Request.Context(), messages)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, assistant.ErrEmptyConversation) {
			status = http.StatusBadRequest
		}
		respondError(c, h.logger, status, "Failed to chat", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
