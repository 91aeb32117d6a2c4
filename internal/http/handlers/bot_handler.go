// Bot HTTP handlers.
//
// This file exposes REST endpoints for the chat surface:
//   - POST   /messages                  (send a message, get the bot reply)
//   - GET    /history                   (reconciled conversation history)
//   - DELETE /history                   (clear the user's conversation)
//   - POST   /messages/{id}/escalate    (manually forward a message to an expert)
//   - GET    /intents                   (names of intents the bot currently knows)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (whitespace and length constraints)
//   - delegate to application services (BotService)
//   - implement idempotency semantics on message submission
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, key), the handler returns the recorded turn and
// sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/repo"
	"github.com/avolkov/go-support-bot/internal/services"
)

//
// Service contracts (context-aware)
//

// BotService defines the chat-turn operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BotService interface {
	// ProcessMessage runs one chat turn and returns the reply and the id of
	// the stored user message.
	ProcessMessage(ctx context.Context, userID, message string) (string, string, error)
	// SendToExpert forwards a question to the expert queue on the user's behalf.
	SendToExpert(ctx context.Context, messageID, userID, question string) error
	// History returns the user's conversation with expert answers folded in.
	History(ctx context.Context, userID string) ([]domain.ChatMessage, error)
	// DeleteHistory clears the conversation and reports whether anything was removed.
	DeleteHistory(ctx context.Context, userID string) (bool, error)
	// AvailableIntents lists the names of all currently known intents.
	AvailableIntents(ctx context.Context) []string
}

// FeedbackService defines operations to capture user feedback on bot replies.
type FeedbackService interface {
	// Provide records whether the bot's classification of messageID was correct,
	// optionally naming the intent the user meant.
	Provide(ctx context.Context, messageID string, isCorrect bool, correctIntent string) error
}

// ExpertQueue defines the expert-side operations consumed by HTTP handlers.
type ExpertQueue interface {
	// CreateQuestion files a new question and returns its id.
	CreateQuestion(ctx context.Context, userID, question string, relatedMessageID *string) (string, error)
	// PendingQuestions returns the open queue, oldest first.
	PendingQuestions(ctx context.Context, offset, limit int) ([]domain.ExpertQuestion, error)
	// AnswerQuestion records an expert answer and folds it into the intent base.
	AnswerQuestion(ctx context.Context, questionID, expertID, answer string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for messages, history, feedback, and the
// expert queue. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	botSvc    BotService
	fbSvc     FeedbackService
	expertSvc ExpertQueue
}

// New constructs and returns a Handlers instance bound to the given services.
func New(botSvc BotService, fbSvc FeedbackService, expertSvc ExpertQueue) *Handlers {
	return &Handlers{botSvc: botSvc, fbSvc: fbSvc, expertSvc: expertSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
type PostMessageRequest struct {
	// Message is the user's text. It must be non-empty after trimming.
	Message string `json:"message" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a completed chat turn.
type PostMessageResponse struct {
	// Reply is the bot's answer to the submitted message.
	Reply string `json:"reply"`
	// MessageID identifies the stored user turn; clients reference it when
	// leaving feedback or escalating.
	MessageID string `json:"message_id"`
}

// HistoryResponse contains the user's reconciled conversation, oldest first.
type HistoryResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// EscalateRequest optionally overrides the question text forwarded to experts.
// When empty, the original message text is used.
type EscalateRequest struct {
	Question string `json:"question"`
}

// IntentsResponse lists the names of intents the bot can currently match.
type IntentsResponse struct {
	Intents []string `json:"intents"`
}

//
// Helpers
//

// botDB exposes the concrete service's *gorm.DB for handler-level concerns
// (idempotency replay). Returns nil when the handler was wired with a fake.
func (h *Handlers) botDB() *services.BotService {
	if svc, ok := h.botSvc.(*services.BotService); ok && svc.DB != nil {
		return svc
	}
	return nil
}

// idempotencyKey reads a client-supplied Idempotency-Key header if present.
func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

// maxMessageRunes inspects the concrete BotService for a configured message
// length limit. If unavailable, it returns a conservative fallback.
func (h *Handlers) maxMessageRunes() int {
	const fallback = 2000
	if svc, ok := h.botSvc.(*services.BotService); ok && svc.MaxMessageRunes > 0 {
		return svc.MaxMessageRunes
	}
	return fallback
}

//
// Handlers
//

// PostMessage appends a user message and returns the bot's reply.
//
// Supports idempotency via the Idempotency-Key header: retrying with the same
// key returns the originally recorded turn instead of running a new one.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	maxRunes := h.maxMessageRunes()
	if utf8.RuneCountInString(message) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – return the recorded turn for this key.
	idemKey := idempotencyKey(c)
	if idemKey != "" {
		if svc := h.botDB(); svc != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, svc.DB, rec.MessageID); err2 == nil && prev.Response != nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, PostMessageResponse{Reply: *prev.Response, MessageID: prev.ID})
					return
				}
			}
		}
	}

	reply, messageID, err := h.botSvc.ProcessMessage(ctx, currentUser, message)
	if err != nil {
		switch err {
		case services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc := h.botDB(); svc != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, idemKey, messageID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{Reply: reply, MessageID: messageID})
}

// GetHistory returns the user's conversation, oldest first, with committed
// expert answers folded in as bot turns.
func (h *Handlers) GetHistory(c *gin.Context) {
	msgs, err := h.botSvc.History(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	ok(c, http.StatusOK, HistoryResponse{Messages: msgs})
}

// DeleteHistory clears the user's conversation. Returns 204 when something was
// deleted and 404 when the history was already empty.
func (h *Handlers) DeleteHistory(c *gin.Context) {
	deleted, err := h.botSvc.DeleteHistory(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no history for user")
		return
	}
	noContent(c)
}

// Escalate manually forwards the referenced message to the expert queue.
//
// The request body may carry an explicit question; when omitted, the stored
// message text is forwarded. Escalating the same message twice is a no-op.
func (h *Handlers) Escalate(c *gin.Context) {
	ctx := c.Request.Context()
	messageID := c.Param("id")
	uid := userID(c)

	var req EscalateRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	question := strings.TrimSpace(req.Question)
	if question == "" {
		svc := h.botDB()
		if svc == nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
			return
		}
		m, err := repo.GetMessage(ctx, svc.DB, messageID)
		if err != nil {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
			return
		}
		if m.UserID != uid || !m.IsUser {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot escalate this message")
			return
		}
		question = m.Message
	}

	if err := h.botSvc.SendToExpert(ctx, messageID, uid, question); err != nil {
		switch err {
		case services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeEscalateFailed, err.Error())
		}
		return
	}
	noContent(c)
}

// ListIntents returns the names of all intents the bot currently knows.
func (h *Handlers) ListIntents(c *gin.Context) {
	names := h.botSvc.AvailableIntents(c.Request.Context())
	if names == nil {
		names = []string{}
	}
	ok(c, http.StatusOK, IntentsResponse{Intents: names})
}
