// Package store provides storage backends for TextLoop.
//
// This file implements an SQLite-backed store for organizations, questions,
// conversation state, sessions, responses and the conversation log.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/TextLoop/TextLoop/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// AddOrganization inserts an organization with its SMS binding.
func (s *SQLiteStore) AddOrganization(org models.Organization) error {
	_, err := s.db.Exec(
		`INSERT INTO organizations (id, name, sender_id, sms_enabled, account_sid, auth_token, webhook_secret, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.SenderID, org.SMSEnabled,
		nilIfEmpty(org.AccountSID), nilIfEmpty(org.AuthToken), nilIfEmpty(org.WebhookSecret), org.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddOrganization failed", "error", err, "orgID", org.ID)
		return fmt.Errorf("failed to insert organization %s: %w", org.ID, err)
	}
	slog.Debug("SQLiteStore AddOrganization succeeded", "orgID", org.ID, "senderID", org.SenderID)
	return nil
}

// GetOrganizationBySender resolves the SMS-enabled organization bound to a
// sender identifier. Returns nil when no binding exists.
func (s *SQLiteStore) GetOrganizationBySender(senderID string) (*models.Organization, error) {
	row := s.db.QueryRow(
		`SELECT id, name, sender_id, sms_enabled, account_sid, auth_token, webhook_secret, created_at
		 FROM organizations WHERE sender_id = ? AND sms_enabled = 1`, senderID)
	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetOrganizationBySender not found", "senderID", senderID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrganizationBySender failed", "error", err, "senderID", senderID)
		return nil, fmt.Errorf("failed to query organization for sender %s: %w", senderID, err)
	}
	return org, nil
}

// AddQuestion inserts a survey question.
func (s *SQLiteStore) AddQuestion(q models.Question) error {
	if !models.IsValidQuestionType(q.Type) {
		slog.Error("SQLiteStore AddQuestion invalid type", "questionID", q.ID, "type", q.Type)
		return models.ErrInvalidQuestionType
	}
	optionsJSON, err := marshalOptions(q.Options)
	if err != nil {
		slog.Error("SQLiteStore AddQuestion options marshal failed", "error", err, "questionID", q.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, org_id, text, type, order_index, category, active, options, scale_min, scale_max, min_label, max_label)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.OrgID, q.Text, string(q.Type), q.OrderIndex, nilIfEmpty(q.Category), q.Active,
		nilIfEmpty(optionsJSON), q.ScaleMin, q.ScaleMax, nilIfEmpty(q.MinLabel), nilIfEmpty(q.MaxLabel))
	if err != nil {
		slog.Error("SQLiteStore AddQuestion failed", "error", err, "questionID", q.ID)
		return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
	}
	slog.Debug("SQLiteStore AddQuestion succeeded", "questionID", q.ID, "orgID", q.OrgID)
	return nil
}

// ListActiveQuestions returns the organization's active questions sorted
// ascending by order index.
func (s *SQLiteStore) ListActiveQuestions(orgID string) ([]models.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, org_id, text, type, order_index, category, active, options, scale_min, scale_max, min_label, max_label
		 FROM questions WHERE org_id = ? AND active = 1 ORDER BY order_index ASC`, orgID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveQuestions query failed", "error", err, "orgID", orgID)
		return nil, fmt.Errorf("failed to query questions for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveQuestions scan failed", "error", err, "orgID", orgID)
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveQuestions rows iteration failed", "error", err, "orgID", orgID)
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveQuestions succeeded", "orgID", orgID, "count", len(questions))
	return questions, nil
}

// GetConversationState retrieves the most recent conversation state for a tuple.
func (s *SQLiteStore) GetConversationState(orgID, phoneNumber, senderID string) (*models.ConversationState, error) {
	row := s.db.QueryRow(
		`SELECT id, org_id, phone_number, sender_id, step, consented, answers, session_id, last_message_id, created_at, updated_at
		 FROM conversation_states WHERE org_id = ? AND phone_number = ? AND sender_id = ?
		 ORDER BY updated_at DESC LIMIT 1`, orgID, phoneNumber, senderID)
	state, err := scanConversationState(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversationState not found", "orgID", orgID, "phone", phoneNumber, "senderID", senderID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "orgID", orgID, "phone", phoneNumber)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}
	slog.Debug("SQLiteStore GetConversationState found", "orgID", orgID, "phone", phoneNumber, "step", state.Step.String())
	return state, nil
}

// SaveConversationState stores or updates a conversation state record.
func (s *SQLiteStore) SaveConversationState(state models.ConversationState) error {
	answersJSON, err := marshalAnswers(state.Answers)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState answers marshal failed", "error", err, "stateID", state.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO conversation_states
		 (id, org_id, phone_number, sender_id, step, consented, answers, session_id, last_message_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID, state.OrgID, state.PhoneNumber, state.SenderID, state.Step.String(), state.Consented,
		nilIfEmpty(answersJSON), nilIfEmpty(state.SessionID), nilIfEmpty(state.LastMessageID),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "stateID", state.ID)
		return fmt.Errorf("failed to save conversation state %s: %w", state.ID, err)
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "stateID", state.ID, "step", state.Step.String())
	return nil
}

// CreateSession inserts a new in-progress feedback session.
func (s *SQLiteStore) CreateSession(session models.FeedbackSession) error {
	_, err := s.db.Exec(
		`INSERT INTO feedback_sessions (id, org_id, phone_number, status, score, origin, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OrgID, session.PhoneNumber, string(session.Status), session.Score,
		session.Origin, session.StartedAt, session.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "sessionID", session.ID, "orgID", session.OrgID)
	return nil
}

// CompleteSession marks the session completed with its aggregate score.
func (s *SQLiteStore) CompleteSession(sessionID string, score int, completedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE feedback_sessions SET status = ?, score = ?, completed_at = ? WHERE id = ?`,
		string(models.SessionStatusCompleted), score, completedAt, sessionID)
	if err != nil {
		slog.Error("SQLiteStore CompleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Error("SQLiteStore CompleteSession session missing", "sessionID", sessionID)
		return models.ErrSessionNotFound
	}
	slog.Debug("SQLiteStore CompleteSession succeeded", "sessionID", sessionID, "score", score)
	return nil
}

// AddFeedbackResponse inserts one captured answer record. The insert is
// idempotent per (session, question) pair: a retried answer after a failed
// state save keeps the first recorded row.
func (s *SQLiteStore) AddFeedbackResponse(resp models.FeedbackResponse) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO feedback_responses (id, session_id, question_id, value, score, category, question_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.SessionID, resp.QuestionID, resp.Value, resp.Score,
		nilIfEmpty(resp.Category), nilIfEmpty(resp.QuestionSnapshot), resp.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddFeedbackResponse failed", "error", err, "sessionID", resp.SessionID, "questionID", resp.QuestionID)
		return fmt.Errorf("failed to insert response for question %s: %w", resp.QuestionID, err)
	}
	slog.Debug("SQLiteStore AddFeedbackResponse succeeded", "sessionID", resp.SessionID, "questionID", resp.QuestionID)
	return nil
}

// AddConversationLog appends one message record to the conversation log.
func (s *SQLiteStore) AddConversationLog(entry models.ConversationLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_logs (id, org_id, phone_number, sender_id, direction, content, provider_message_id, send_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, entry.PhoneNumber, entry.SenderID, string(entry.Direction), entry.Content,
		nilIfEmpty(entry.ProviderMessageID), nilIfEmpty(entry.SendError), entry.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddConversationLog failed", "error", err, "orgID", entry.OrgID, "direction", entry.Direction)
		return fmt.Errorf("failed to insert conversation log entry: %w", err)
	}
	slog.Debug("SQLiteStore AddConversationLog succeeded", "orgID", entry.OrgID, "direction", entry.Direction)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

func marshalAnswers(answers map[string]string) (string, error) {
	if len(answers) == 0 {
		return "", nil
	}
	jsonBytes, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(jsonBytes), nil
}

func marshalOptions(options []models.QuestionOption) (string, error) {
	if len(options) == 0 {
		return "", nil
	}
	jsonBytes, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal question options: %w", err)
	}
	return string(jsonBytes), nil
}
