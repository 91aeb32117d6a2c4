// Expert queue HTTP handlers.
//
// This file exposes REST endpoints for the expert side of the escalation loop:
//   - GET  /expert/questions               (open queue, paginated, ETag support)
//   - POST /expert/questions               (file a question directly)
//   - POST /expert/questions/{id}/answer   (answer; folds into the intent base)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/repo"
	"github.com/avolkov/go-support-bot/internal/services"
	"github.com/avolkov/go-support-bot/internal/utils"
)

//
// DTOs
//

// CreateQuestionRequest is the JSON payload for filing an expert question
// directly, outside the automatic escalation path.
type CreateQuestionRequest struct {
	Question string `json:"question" binding:"required,min=1"`
}

// CreateQuestionResponse returns the id of the newly filed question.
type CreateQuestionResponse struct {
	QuestionID string `json:"question_id"`
}

// AnswerQuestionRequest is the JSON payload for answering an open question.
type AnswerQuestionRequest struct {
	Answer string `json:"answer" binding:"required,min=1"`
}

// ListQuestionsResponse contains a page of open expert questions and
// pagination metadata.
type ListQuestionsResponse struct {
	Questions  []domain.ExpertQuestion `json:"questions"`
	Pagination Pagination              `json:"pagination"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// expertDB exposes the concrete service's *gorm.DB for handler-level concerns
// (conditional responses). Returns nil when wired with a fake.
func (h *Handlers) expertDB() *services.ExpertService {
	if svc, ok := h.expertSvc.(*services.ExpertService); ok && svc.DB != nil {
		return svc
	}
	return nil
}

//
// Handlers
//

// ListQuestions returns the open expert queue, oldest first. Supports weak
// ETag via If-None-Match and may return 304.
func (h *Handlers) ListQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc := h.expertDB(); svc != nil {
		count, latest, err := repo.PendingQuestionStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if latest != nil {
				ts = latest.Unix()
			}
			etag := fmt.Sprintf(`W/"questions:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch one extra row to decide has_next without a count query.
	offset := (page - 1) * pageSize
	items, err := h.expertSvc.PendingQuestions(ctx, offset, pageSize+1)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	hasNext := len(items) > pageSize
	if hasNext {
		items = items[:pageSize]
	}
	if items == nil {
		items = []domain.ExpertQuestion{}
	}

	ok(c, http.StatusOK, ListQuestionsResponse{
		Questions: items,
		Pagination: Pagination{
			Page:     page,
			PageSize: pageSize,
			HasNext:  hasNext,
		},
	})
}

// CreateQuestion files an expert question for the current user directly.
func (h *Handlers) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	id, err := h.expertSvc.CreateQuestion(c.Request.Context(), userID(c), strings.TrimSpace(req.Question), nil)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeEscalateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, CreateQuestionResponse{QuestionID: id})
}

// AnswerQuestion records an expert's answer for the referenced question. The
// expert identity is taken from the X-User-ID header (same demo scheme as the
// chat surface).
func (h *Handlers) AnswerQuestion(c *gin.Context) {
	var req AnswerQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer required")
		return
	}

	questionID := c.Param("id")
	if err := h.expertSvc.AnswerQuestion(c.Request.Context(), questionID, userID(c), req.Answer); err != nil {
		switch err {
		case services.ErrEmptyAnswer:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer required")
		case services.ErrQuestionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "question not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}
