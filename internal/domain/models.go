// Package domain defines the persistence models for intents, chat turns, and
// escalated expert questions. These types are mapped with GORM and form the
// core data layer of the support-bot application.
package domain

import "time"

// Intent is a named category of user request with associated trigger patterns
// and candidate replies. Intents are created at bootstrap (built-in defaults),
// by the learning heuristics, or by expert-answer ingestion, and are never
// hard-deleted.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: globally unique intent name; expert-authored intents carry the
//     "expert_" prefix.
//   - Patterns / Responses: JSON-serialized string sets; order is irrelevant,
//     empty is allowed, nil is not persisted (GORM serializer writes "[]").
//   - UsageCount: how many times the classifier resolved this intent.
//   - CreatedAt / UpdatedAt: timestamps managed by the repo layer.
type Intent struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name       string    `json:"name"        gorm:"type:varchar(80);not null;uniqueIndex:ux_intent_name"`
	Patterns   []string  `json:"patterns"    gorm:"serializer:json;type:text;not null"`
	Responses  []string  `json:"responses"   gorm:"serializer:json;type:text;not null"`
	UsageCount int       `json:"usage_count" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Intent.
func (Intent) TableName() string { return "intents" }

// ChatMessage is a single conversation turn, authored either by the user or
// by the bot. Bot turns never carry intent, confidence, or feedback.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owner of the conversation; indexed together with CreatedAt for
//     efficient history windows.
//   - Message: the turn's text content.
//   - Response: bot reply recorded on the user turn (nil on bot turns).
//   - IsUser: true for user-authored turns.
//   - Intent / Confidence: classification result (user turns only).
//   - UserFeedback: tri-state correctness flag set later by feedback.
//   - CorrectIntent: user-supplied override recorded with negative feedback.
type ChatMessage struct {
	ID            string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_msgs,priority:1"`
	Message       string    `json:"message" gorm:"type:text;not null"`
	Response      *string   `json:"response,omitempty" gorm:"type:text"`
	IsUser        bool      `json:"is_user" gorm:"not null"`
	Intent        *string   `json:"intent,omitempty" gorm:"type:varchar(80)"`
	Confidence    float64   `json:"confidence" gorm:"not null;default:0"`
	UserFeedback  *bool     `json:"user_feedback,omitempty"`
	CorrectIntent *string   `json:"correct_intent,omitempty" gorm:"type:varchar(80)"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:idx_user_msgs,priority:2"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// QuestionStatus is the expert-question state machine. Pending and InProgress
// questions can still reach Answered; re-answering an Answered question
// updates it in place rather than creating a new record.
type QuestionStatus int

const (
	// StatusPending means the question awaits an expert.
	StatusPending QuestionStatus = iota
	// StatusInProgress means an expert claimed the question.
	StatusInProgress
	// StatusAnswered means an answer has been recorded.
	StatusAnswered
	// StatusResolved means the user confirmed the answer.
	StatusResolved
)

// String returns a short lowercase label for logs.
func (s QuestionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusAnswered:
		return "answered"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// ExpertQuestion is an escalated user query awaiting (or holding) a human
// expert's answer. Answered/Resolved imply non-empty Answer, non-nil
// AnsweredAt and ExpertID.
type ExpertQuestion struct {
	ID               string         `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID           string         `json:"user_id"  gorm:"type:varchar(64);not null;index"`
	Question         string         `json:"question" gorm:"type:text;not null"`
	Answer           *string        `json:"answer,omitempty" gorm:"type:text"`
	ExpertID         *string        `json:"expert_id,omitempty" gorm:"type:varchar(64)"`
	Status           QuestionStatus `json:"status" gorm:"not null;default:0;index"`
	RelatedMessageID *string        `json:"related_message_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt        time.Time      `json:"created_at"`
	AnsweredAt       *time.Time     `json:"answered_at,omitempty"`
}

// TableName returns the database table name for ExpertQuestion.
func (ExpertQuestion) TableName() string { return "expert_questions" }
