// Feedback HTTP handlers.
//
// This file exposes the REST endpoint for grading the bot's classification of
// a message:
//   - POST /messages/{id}/feedback
//
// Handlers in this file are transport-thin: they validate input, delegate to
// application services, and translate domain/service errors into HTTP results.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avolkov/go-support-bot/internal/services"
)

// ProvideFeedbackRequest is the JSON payload for grading a classified message.
//
// IsCorrect reports whether the bot understood the message. When it did not,
// CorrectIntent may name the intent the user actually meant, which teaches the
// bot the message as a new pattern for that intent.
type ProvideFeedbackRequest struct {
	IsCorrect     *bool  `json:"is_correct" binding:"required"`
	CorrectIntent string `json:"correct_intent"`
}

// ProvideFeedback records feedback for the referenced user message.
func (h *Handlers) ProvideFeedback(c *gin.Context) {
	var req ProvideFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsCorrect == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_correct required")
		return
	}

	messageID := c.Param("id")
	correct := strings.TrimSpace(req.CorrectIntent)

	if err := h.fbSvc.Provide(c.Request.Context(), messageID, *req.IsCorrect, correct); err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrNotUserTurn:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "feedback applies to user messages only")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}
