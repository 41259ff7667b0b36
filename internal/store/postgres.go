// Package store provides storage backends for TextLoop.
//
// This file implements a PostgreSQL-backed store for organizations,
// questions, conversation state, sessions, responses and the conversation
// log.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/TextLoop/TextLoop/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// AddOrganization inserts an organization with its SMS binding.
func (s *PostgresStore) AddOrganization(org models.Organization) error {
	_, err := s.db.Exec(
		`INSERT INTO organizations (id, name, sender_id, sms_enabled, account_sid, auth_token, webhook_secret, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		org.ID, org.Name, org.SenderID, org.SMSEnabled,
		nilIfEmpty(org.AccountSID), nilIfEmpty(org.AuthToken), nilIfEmpty(org.WebhookSecret), org.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddOrganization failed", "error", err, "orgID", org.ID)
		return fmt.Errorf("failed to insert organization %s: %w", org.ID, err)
	}
	slog.Debug("PostgresStore AddOrganization succeeded", "orgID", org.ID, "senderID", org.SenderID)
	return nil
}

// GetOrganizationBySender resolves the SMS-enabled organization bound to a
// sender identifier. Returns nil when no binding exists.
func (s *PostgresStore) GetOrganizationBySender(senderID string) (*models.Organization, error) {
	row := s.db.QueryRow(
		`SELECT id, name, sender_id, sms_enabled, account_sid, auth_token, webhook_secret, created_at
		 FROM organizations WHERE sender_id = $1 AND sms_enabled = TRUE`, senderID)
	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetOrganizationBySender not found", "senderID", senderID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrganizationBySender failed", "error", err, "senderID", senderID)
		return nil, fmt.Errorf("failed to query organization for sender %s: %w", senderID, err)
	}
	return org, nil
}

// AddQuestion inserts a survey question.
func (s *PostgresStore) AddQuestion(q models.Question) error {
	if !models.IsValidQuestionType(q.Type) {
		slog.Error("PostgresStore AddQuestion invalid type", "questionID", q.ID, "type", q.Type)
		return models.ErrInvalidQuestionType
	}
	optionsJSON, err := marshalOptions(q.Options)
	if err != nil {
		slog.Error("PostgresStore AddQuestion options marshal failed", "error", err, "questionID", q.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, org_id, text, type, order_index, category, active, options, scale_min, scale_max, min_label, max_label)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.ID, q.OrgID, q.Text, string(q.Type), q.OrderIndex, nilIfEmpty(q.Category), q.Active,
		nilIfEmpty(optionsJSON), q.ScaleMin, q.ScaleMax, nilIfEmpty(q.MinLabel), nilIfEmpty(q.MaxLabel))
	if err != nil {
		slog.Error("PostgresStore AddQuestion failed", "error", err, "questionID", q.ID)
		return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
	}
	slog.Debug("PostgresStore AddQuestion succeeded", "questionID", q.ID, "orgID", q.OrgID)
	return nil
}

// ListActiveQuestions returns the organization's active questions sorted
// ascending by order index.
func (s *PostgresStore) ListActiveQuestions(orgID string) ([]models.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, org_id, text, type, order_index, category, active, options, scale_min, scale_max, min_label, max_label
		 FROM questions WHERE org_id = $1 AND active = TRUE ORDER BY order_index ASC`, orgID)
	if err != nil {
		slog.Error("PostgresStore ListActiveQuestions query failed", "error", err, "orgID", orgID)
		return nil, fmt.Errorf("failed to query questions for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveQuestions scan failed", "error", err, "orgID", orgID)
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveQuestions rows iteration failed", "error", err, "orgID", orgID)
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveQuestions succeeded", "orgID", orgID, "count", len(questions))
	return questions, nil
}

// GetConversationState retrieves the most recent conversation state for a tuple.
func (s *PostgresStore) GetConversationState(orgID, phoneNumber, senderID string) (*models.ConversationState, error) {
	row := s.db.QueryRow(
		`SELECT id, org_id, phone_number, sender_id, step, consented, answers, session_id, last_message_id, created_at, updated_at
		 FROM conversation_states WHERE org_id = $1 AND phone_number = $2 AND sender_id = $3
		 ORDER BY updated_at DESC LIMIT 1`, orgID, phoneNumber, senderID)
	state, err := scanConversationState(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversationState not found", "orgID", orgID, "phone", phoneNumber, "senderID", senderID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "orgID", orgID, "phone", phoneNumber)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}
	slog.Debug("PostgresStore GetConversationState found", "orgID", orgID, "phone", phoneNumber, "step", state.Step.String())
	return state, nil
}

// SaveConversationState stores or updates a conversation state record.
func (s *PostgresStore) SaveConversationState(state models.ConversationState) error {
	answersJSON, err := marshalAnswers(state.Answers)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState answers marshal failed", "error", err, "stateID", state.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_states
		 (id, org_id, phone_number, sender_id, step, consented, answers, session_id, last_message_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		 step = EXCLUDED.step, consented = EXCLUDED.consented, answers = EXCLUDED.answers,
		 session_id = EXCLUDED.session_id, last_message_id = EXCLUDED.last_message_id,
		 updated_at = EXCLUDED.updated_at`,
		state.ID, state.OrgID, state.PhoneNumber, state.SenderID, state.Step.String(), state.Consented,
		nilIfEmpty(answersJSON), nilIfEmpty(state.SessionID), nilIfEmpty(state.LastMessageID),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "stateID", state.ID)
		return fmt.Errorf("failed to save conversation state %s: %w", state.ID, err)
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "stateID", state.ID, "step", state.Step.String())
	return nil
}

// CreateSession inserts a new in-progress feedback session.
func (s *PostgresStore) CreateSession(session models.FeedbackSession) error {
	_, err := s.db.Exec(
		`INSERT INTO feedback_sessions (id, org_id, phone_number, status, score, origin, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.OrgID, session.PhoneNumber, string(session.Status), session.Score,
		session.Origin, session.StartedAt, session.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "sessionID", session.ID, "orgID", session.OrgID)
	return nil
}

// CompleteSession marks the session completed with its aggregate score.
func (s *PostgresStore) CompleteSession(sessionID string, score int, completedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE feedback_sessions SET status = $1, score = $2, completed_at = $3 WHERE id = $4`,
		string(models.SessionStatusCompleted), score, completedAt, sessionID)
	if err != nil {
		slog.Error("PostgresStore CompleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Error("PostgresStore CompleteSession session missing", "sessionID", sessionID)
		return models.ErrSessionNotFound
	}
	slog.Debug("PostgresStore CompleteSession succeeded", "sessionID", sessionID, "score", score)
	return nil
}

// AddFeedbackResponse inserts one captured answer record. The insert is
// idempotent per (session, question) pair: a retried answer after a failed
// state save keeps the first recorded row.
func (s *PostgresStore) AddFeedbackResponse(resp models.FeedbackResponse) error {
	_, err := s.db.Exec(
		`INSERT INTO feedback_responses (id, session_id, question_id, value, score, category, question_snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id, question_id) DO NOTHING`,
		resp.ID, resp.SessionID, resp.QuestionID, resp.Value, resp.Score,
		nilIfEmpty(resp.Category), nilIfEmpty(resp.QuestionSnapshot), resp.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddFeedbackResponse failed", "error", err, "sessionID", resp.SessionID, "questionID", resp.QuestionID)
		return fmt.Errorf("failed to insert response for question %s: %w", resp.QuestionID, err)
	}
	slog.Debug("PostgresStore AddFeedbackResponse succeeded", "sessionID", resp.SessionID, "questionID", resp.QuestionID)
	return nil
}

// AddConversationLog appends one message record to the conversation log.
func (s *PostgresStore) AddConversationLog(entry models.ConversationLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_logs (id, org_id, phone_number, sender_id, direction, content, provider_message_id, send_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.OrgID, entry.PhoneNumber, entry.SenderID, string(entry.Direction), entry.Content,
		nilIfEmpty(entry.ProviderMessageID), nilIfEmpty(entry.SendError), entry.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddConversationLog failed", "error", err, "orgID", entry.OrgID, "direction", entry.Direction)
		return fmt.Errorf("failed to insert conversation log entry: %w", err)
	}
	slog.Debug("PostgresStore AddConversationLog succeeded", "orgID", entry.OrgID, "direction", entry.Direction)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
