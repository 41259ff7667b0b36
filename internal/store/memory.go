// Package store provides storage backends for TextLoop.
//
// This file implements an in-memory store used by tests and single-process
// development setups. All operations are safe for concurrent use.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/TextLoop/TextLoop/internal/models"
)

// InMemoryStore keeps all records in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	orgs      map[string]models.Organization // keyed by sender identifier
	questions []models.Question
	states    map[string]models.ConversationState // keyed by state ID
	sessions  map[string]models.FeedbackSession
	responses []models.FeedbackResponse
	logs      []models.ConversationLogEntry
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orgs:     make(map[string]models.Organization),
		states:   make(map[string]models.ConversationState),
		sessions: make(map[string]models.FeedbackSession),
	}
}

// AddOrganization inserts an organization with its SMS binding.
func (s *InMemoryStore) AddOrganization(org models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.SenderID] = org
	return nil
}

// GetOrganizationBySender resolves the organization bound to a sender identifier.
func (s *InMemoryStore) GetOrganizationBySender(senderID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[senderID]
	if !ok || !org.SMSEnabled {
		return nil, nil
	}
	cp := org
	return &cp, nil
}

// AddQuestion inserts a survey question.
func (s *InMemoryStore) AddQuestion(q models.Question) error {
	if !models.IsValidQuestionType(q.Type) {
		return models.ErrInvalidQuestionType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, q)
	return nil
}

// ListActiveQuestions returns active questions sorted by order index.
func (s *InMemoryStore) ListActiveQuestions(orgID string) ([]models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Question
	for _, q := range s.questions {
		if q.OrgID == orgID && q.Active {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// GetConversationState returns the most recently updated state for the tuple.
func (s *InMemoryStore) GetConversationState(orgID, phoneNumber, senderID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.ConversationState
	for id := range s.states {
		st := s.states[id]
		if st.OrgID != orgID || st.PhoneNumber != phoneNumber || st.SenderID != senderID {
			continue
		}
		if latest == nil || st.UpdatedAt.After(latest.UpdatedAt) {
			cp := st
			latest = &cp
		}
	}
	return latest, nil
}

// SaveConversationState upserts the state record keyed by its ID.
func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy the answers map so later engine mutations do not leak into the store.
	if state.Answers != nil {
		answers := make(map[string]string, len(state.Answers))
		for k, v := range state.Answers {
			answers[k] = v
		}
		state.Answers = answers
	}
	s.states[state.ID] = state
	return nil
}

// CreateSession inserts a new in-progress session.
func (s *InMemoryStore) CreateSession(session models.FeedbackSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// CompleteSession marks a session completed with its aggregate score.
func (s *InMemoryStore) CompleteSession(sessionID string, score int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	session.Status = models.SessionStatusCompleted
	session.Score = score
	session.CompletedAt = &completedAt
	s.sessions[sessionID] = session
	return nil
}

// AddFeedbackResponse inserts one answer record. Re-inserting an already
// recorded (session, question) pair is a no-op, so a retried answer after a
// failed state save is stored exactly once.
func (s *InMemoryStore) AddFeedbackResponse(resp models.FeedbackResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.responses {
		if existing.SessionID == resp.SessionID && existing.QuestionID == resp.QuestionID {
			return nil
		}
	}
	s.responses = append(s.responses, resp)
	return nil
}

// AddConversationLog appends one message record.
func (s *InMemoryStore) AddConversationLog(entry models.ConversationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

// GetSession returns a session by ID (for tests and diagnostics).
func (s *InMemoryStore) GetSession(sessionID string) (*models.FeedbackSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := session
	return &cp, nil
}

// GetResponses returns all stored answers (for tests and diagnostics).
func (s *InMemoryStore) GetResponses() ([]models.FeedbackResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeedbackResponse, len(s.responses))
	copy(out, s.responses)
	return out, nil
}

// GetConversationLogs returns all log entries (for tests and diagnostics).
func (s *InMemoryStore) GetConversationLogs() ([]models.ConversationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConversationLogEntry, len(s.logs))
	copy(out, s.logs)
	return out, nil
}

// SessionCount returns the number of stored sessions (for tests).
func (s *InMemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
