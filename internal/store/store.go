// Package store provides storage backends for TextLoop.
//
// It includes an in-memory store for tests and single-process development,
// plus SQLite and PostgreSQL backed stores for persistent deployments.
package store

import (
	"time"

	"github.com/TextLoop/TextLoop/internal/models"
)

// Opts holds shared configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite,
// connection URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// OrgRepo resolves the organization bound to an inbound sender identifier.
type OrgRepo interface {
	// GetOrganizationBySender returns the SMS-enabled organization bound to
	// the sender identifier, or nil when no binding exists.
	GetOrganizationBySender(senderID string) (*models.Organization, error)
}

// QuestionRepo loads an organization's survey catalog.
type QuestionRepo interface {
	// ListActiveQuestions returns the organization's active questions sorted
	// ascending by order index. An empty slice is valid.
	ListActiveQuestions(orgID string) ([]models.Question, error)
}

// ConversationRepo persists per-tuple conversation state.
type ConversationRepo interface {
	// GetConversationState returns the most recent state for the tuple, or
	// nil when the tuple has never conversed.
	GetConversationState(orgID, phoneNumber, senderID string) (*models.ConversationState, error)

	// SaveConversationState upserts the full state record keyed by its ID.
	SaveConversationState(state models.ConversationState) error
}

// SessionRepo persists feedback sessions.
type SessionRepo interface {
	// CreateSession inserts a new in-progress session.
	CreateSession(session models.FeedbackSession) error

	// CompleteSession marks the session completed with its aggregate score.
	CompleteSession(sessionID string, score int, completedAt time.Time) error
}

// ResponseRepo persists captured answers.
type ResponseRepo interface {
	// AddFeedbackResponse inserts one answer record. Each (session, question)
	// pair is stored exactly once; re-inserting an already recorded pair is a
	// no-op so a retried answer never duplicates or fails.
	AddFeedbackResponse(resp models.FeedbackResponse) error
}

// LogRepo appends to the conversation audit log.
type LogRepo interface {
	// AddConversationLog appends one inbound or outbound message record.
	AddConversationLog(entry models.ConversationLogEntry) error
}

// Store combines all repositories the service needs, plus provisioning
// operations used by seeding and tests. Organizations and questions are
// managed by external admin services; the conversation engine only reads
// them.
type Store interface {
	OrgRepo
	QuestionRepo
	ConversationRepo
	SessionRepo
	ResponseRepo
	LogRepo

	// AddOrganization inserts an organization with its SMS binding.
	AddOrganization(org models.Organization) error

	// AddQuestion inserts a survey question.
	AddQuestion(q models.Question) error

	// Close releases any underlying resources.
	Close() error
}
