package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TextLoop/TextLoop/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOrganization scans one organization row.
func scanOrganization(row rowScanner) (*models.Organization, error) {
	var org models.Organization
	var accountSID, authToken, webhookSecret sql.NullString
	err := row.Scan(&org.ID, &org.Name, &org.SenderID, &org.SMSEnabled,
		&accountSID, &authToken, &webhookSecret, &org.CreatedAt)
	if err != nil {
		return nil, err
	}
	org.AccountSID = accountSID.String
	org.AuthToken = authToken.String
	org.WebhookSecret = webhookSecret.String
	return &org, nil
}

// scanQuestion scans one question row, decoding the options JSON column.
func scanQuestion(row rowScanner) (models.Question, error) {
	var q models.Question
	var category, optionsJSON, minLabel, maxLabel sql.NullString
	var qType string
	err := row.Scan(&q.ID, &q.OrgID, &q.Text, &qType, &q.OrderIndex, &category,
		&q.Active, &optionsJSON, &q.ScaleMin, &q.ScaleMax, &minLabel, &maxLabel)
	if err != nil {
		return q, fmt.Errorf("scan question failed: %w", err)
	}
	q.Type = models.QuestionType(qType)
	q.Category = category.String
	q.MinLabel = minLabel.String
	q.MaxLabel = maxLabel.String
	if optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &q.Options); err != nil {
			return q, fmt.Errorf("decode options for question %s failed: %w", q.ID, err)
		}
	}
	return q, nil
}

// scanConversationState scans one conversation state row, decoding the step
// string and the answers JSON column.
func scanConversationState(row rowScanner) (*models.ConversationState, error) {
	var state models.ConversationState
	var step string
	var answersJSON, sessionID, lastMessageID sql.NullString
	err := row.Scan(&state.ID, &state.OrgID, &state.PhoneNumber, &state.SenderID,
		&step, &state.Consented, &answersJSON, &sessionID, &lastMessageID,
		&state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := models.ParseStep(step)
	if err != nil {
		return nil, fmt.Errorf("decode step for state %s failed: %w", state.ID, err)
	}
	state.Step = parsed
	state.SessionID = sessionID.String
	state.LastMessageID = lastMessageID.String
	state.Answers = make(map[string]string)
	if answersJSON.String != "" {
		if err := json.Unmarshal([]byte(answersJSON.String), &state.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for state %s failed: %w", state.ID, err)
		}
	}
	return &state, nil
}
