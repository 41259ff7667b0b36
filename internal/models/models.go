// Package models defines the core data structures for TextLoop.
//
// It includes organizations, survey questions, conversation state, feedback
// sessions and responses, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// QuestionType defines how an answer to a question is interpreted.
type QuestionType string

const (
	// QuestionTypeChoice expects the 1-based number of a listed option.
	QuestionTypeChoice QuestionType = "single_choice"
	// QuestionTypeScale expects an integer within configured bounds.
	QuestionTypeScale QuestionType = "numeric_scale"
	// QuestionTypeText accepts any non-empty free-text reply.
	QuestionTypeText QuestionType = "free_text"
)

// Default bounds for scale questions when the organization configured none.
const (
	DefaultScaleMin = 1
	DefaultScaleMax = 5
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhoneNumber    = errors.New("phone number cannot be empty")
	ErrInvalidQuestionType = errors.New("invalid question type")
	ErrSessionNotFound     = errors.New("feedback session not found")
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeChoice, QuestionTypeScale, QuestionTypeText:
		return true
	default:
		return false
	}
}

// Organization is the owner of a survey. The SMS binding associates one
// inbound sender identifier (short code or alphanumeric ID) with exactly one
// organization; it is read-only to the conversation engine.
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SenderID      string    `json:"sender_id"`
	SMSEnabled    bool      `json:"sms_enabled"`
	AccountSID    string    `json:"account_sid,omitempty"`
	AuthToken     string    `json:"auth_token,omitempty"`
	WebhookSecret string    `json:"webhook_secret,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionOption is one selectable option of a choice question. Value is the
// canonical stored value; when empty the option label is stored instead.
type QuestionOption struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// Question is a single survey question belonging to an organization.
// OrderIndex defines the deterministic traversal sequence; only active
// questions are presented to respondents.
type Question struct {
	ID         string           `json:"id"`
	OrgID      string           `json:"org_id"`
	Text       string           `json:"text"`
	Type       QuestionType     `json:"type"`
	OrderIndex int              `json:"order_index"`
	Category   string           `json:"category,omitempty"`
	Active     bool             `json:"active"`
	Options    []QuestionOption `json:"options,omitempty"`
	ScaleMin   int              `json:"scale_min,omitempty"`
	ScaleMax   int              `json:"scale_max,omitempty"`
	MinLabel   string           `json:"min_label,omitempty"`
	MaxLabel   string           `json:"max_label,omitempty"`
}

// ScaleBounds returns the configured scale bounds, falling back to the
// defaults when the question has none set.
func (q Question) ScaleBounds() (int, int) {
	min, max := q.ScaleMin, q.ScaleMax
	if min == 0 && max == 0 {
		return DefaultScaleMin, DefaultScaleMax
	}
	return min, max
}

// ConversationState tracks one respondent's position in a survey
// conversation. It is keyed by the (organization, phone number, sender
// identifier) tuple; at most one non-terminal state exists per tuple.
type ConversationState struct {
	ID            string            `json:"id"`
	OrgID         string            `json:"org_id"`
	PhoneNumber   string            `json:"phone_number"`
	SenderID      string            `json:"sender_id"`
	Step          Step              `json:"step"`
	Consented     bool              `json:"consented"`
	Answers       map[string]string `json:"answers,omitempty"` // question ID -> stored value
	SessionID     string            `json:"session_id,omitempty"`
	LastMessageID string            `json:"last_message_id,omitempty"` // last processed inbound provider message ID
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SessionStatus represents the lifecycle of a feedback session.
type SessionStatus string

const (
	// SessionStatusInProgress indicates the interview is underway.
	SessionStatusInProgress SessionStatus = "in_progress"
	// SessionStatusCompleted indicates all questions were answered.
	SessionStatusCompleted SessionStatus = "completed"
)

// FeedbackSession represents one full interview attempt over SMS.
type FeedbackSession struct {
	ID          string        `json:"id"`
	OrgID       string        `json:"org_id"`
	PhoneNumber string        `json:"phone_number"`
	Status      SessionStatus `json:"status"`
	Score       int           `json:"score"`
	Origin      string        `json:"origin"` // always "sms" for this service
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// FeedbackResponse is one captured answer. Exactly one exists per
// (session, question) pair and it is never mutated after creation.
// QuestionSnapshot preserves the question definition at answer time so later
// edits or deletions do not corrupt history.
type FeedbackResponse struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	QuestionID       string    `json:"question_id"`
	Value            string    `json:"value"`
	Score            *int      `json:"score,omitempty"` // set when the value is numeric
	Category         string    `json:"category,omitempty"`
	QuestionSnapshot string    `json:"question_snapshot,omitempty"` // JSON copy of the question
	CreatedAt        time.Time `json:"created_at"`
}

// Direction tags a conversation log entry as inbound or outbound.
type Direction string

const (
	// DirectionIn marks a message received from the respondent.
	DirectionIn Direction = "in"
	// DirectionOut marks a message sent to the respondent.
	DirectionOut Direction = "out"
)

// ConversationLogEntry is an append-only audit record of one message. It is
// never consulted for control flow.
type ConversationLogEntry struct {
	ID                string    `json:"id"`
	OrgID             string    `json:"org_id"`
	PhoneNumber       string    `json:"phone_number"`
	SenderID          string    `json:"sender_id"`
	Direction         Direction `json:"direction"`
	Content           string    `json:"content"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SendError         string    `json:"send_error,omitempty"` // set when an outbound send failed
	CreatedAt         time.Time `json:"created_at"`
}

// InboundMessage is the normalized form of one provider webhook delivery.
type InboundMessage struct {
	From              string `json:"from"`
	To                string `json:"to"` // the sender identifier the respondent replied to
	Body              string `json:"body"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// SendResult reports the outcome of one outbound send attempt.
type SendResult struct {
	Delivered         bool   `json:"delivered"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional message.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success creates a successful API response.
func Success() APIResponse {
	return APIResponse{Status: string(APIStatusOK)}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
