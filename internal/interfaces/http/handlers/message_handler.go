package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	"go.uber.org/zap"
)

// MessageHandler runs a single-shot turn through the Workflow Loop and
// returns the final assistant content. It is a thin, non-streaming
// sibling of AgentHandler for callers that just want a response body.
type MessageHandler struct {
	agentLoop *service.AgentLoop
	toolExec  service.ToolExecutor
	logger    *zap.Logger
}

func NewMessageHandler(agentLoop *service.AgentLoop, toolExec service.ToolExecutor, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		agentLoop: agentLoop,
		toolExec:  toolExec,
		logger:    logger,
	}
}

type SendMessageRequest struct {
	Content        string `json:"content" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         string `json:"user_id" binding:"required"`
	UserName       string `json:"user_name"`
}

type SendMessageResponse struct {
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	systemPrompt := service.BuildSystemPrompt(h.toolExec.GetDefinitions(), "")

	result, eventCh := h.agentLoop.Run(c.Request.Context(), systemPrompt, req.Content, nil, req.ConversationID)
	for range eventCh {
		// drain events; this endpoint only returns the final result
	}

	if result.FinalContent == "" {
		h.logger.Error("agent loop returned no content", zap.String("conversation", req.ConversationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	resp := SendMessageResponse{
		MessageID:      fmt.Sprintf("msg_%d", time.Now().UnixNano()),
		Content:        result.FinalContent,
		ConversationID: req.ConversationID,
		Role:           "assistant",
	}

	c.JSON(http.StatusOK, resp)
}
