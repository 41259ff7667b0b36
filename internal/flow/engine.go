// Package flow implements the SMS survey conversation engine.
//
// The engine is a state machine driven entirely by inbound webhook
// deliveries: given the conversation's current step and one inbound message
// it computes the next step, the outbound reply, and the persistence side
// effects (answer storage, session creation and completion). All
// dependencies are injected so the transition logic is testable without a
// live database or SMS provider.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/TextLoop/TextLoop/internal/messaging"
	"github.com/TextLoop/TextLoop/internal/metrics"
	"github.com/TextLoop/TextLoop/internal/models"
	"github.com/TextLoop/TextLoop/internal/store"
	"github.com/TextLoop/TextLoop/internal/validate"
	"github.com/google/uuid"
)

// affirmativeTokens are the consent replies that enter the survey. Matching
// is case-insensitive after trimming.
var affirmativeTokens = map[string]bool{
	"1":   true,
	"yes": true,
	"y":   true,
}

// startTokens restart a completed conversation with a fresh state.
var startTokens = map[string]bool{
	"start":   true,
	"restart": true,
}

// Engine drives survey conversations. One Engine serves all organizations;
// per-conversation state lives in the store.
type Engine struct {
	store  store.Store
	sender messaging.Sender
}

// NewEngine creates a conversation engine with the given store and sender.
func NewEngine(st store.Store, sender messaging.Sender) *Engine {
	slog.Debug("Creating conversation engine")
	return &Engine{store: st, sender: sender}
}

// HandleInbound processes one inbound message for an already-resolved
// organization. It returns the reply that was sent (empty when the message
// was an idempotent duplicate). Errors indicate a data-store failure; in
// that case the conversation state was not advanced and a generic retry
// prompt was sent instead of a survey reply.
func (e *Engine) HandleInbound(ctx context.Context, org models.Organization, msg models.InboundMessage) (string, error) {
	slog.Debug("Engine HandleInbound", "orgID", org.ID, "from", msg.From, "messageID", msg.ProviderMessageID)

	state, err := e.store.GetConversationState(org.ID, msg.From, msg.To)
	if err != nil {
		slog.Error("Engine failed to load conversation state", "error", err, "orgID", org.ID, "from", msg.From)
		e.sendReply(ctx, org, msg.From, msg.To, msgApology)
		return "", fmt.Errorf("load conversation state: %w", err)
	}

	now := time.Now()
	body := strings.ToLower(strings.TrimSpace(msg.Body))

	switch {
	case state == nil:
		state = e.newState(org, msg, now)
	case state.Step.Terminal() && startTokens[body]:
		// An explicit start command on a finished conversation begins a new
		// one; the old row is retained as history.
		slog.Info("Engine restarting conversation", "orgID", org.ID, "from", msg.From)
		state = e.newState(org, msg, now)
		e.logMessage(org, msg.From, msg.To, models.DirectionIn, msg.Body, msg.ProviderMessageID, "")
		return e.finishStep(ctx, org, msg, state, consentPrompt(org.Name), now)
	}

	// Duplicate webhook delivery of an already-processed provider message:
	// no side effects, no reply.
	if msg.ProviderMessageID != "" && state.LastMessageID == msg.ProviderMessageID {
		slog.Info("Engine ignoring duplicate inbound message", "orgID", org.ID, "from", msg.From, "messageID", msg.ProviderMessageID)
		return "", nil
	}

	e.logMessage(org, msg.From, msg.To, models.DirectionIn, msg.Body, msg.ProviderMessageID, "")

	questions, err := e.store.ListActiveQuestions(org.ID)
	if err != nil {
		slog.Error("Engine failed to load question catalog", "error", err, "orgID", org.ID)
		e.sendReply(ctx, org, msg.From, msg.To, msgApology)
		return "", fmt.Errorf("load question catalog: %w", err)
	}

	var reply string
	switch state.Step.Kind {
	case models.StepConsent:
		reply, err = e.stepConsent(state, questions, org, body, now)
	case models.StepQuestion:
		reply, err = e.stepQuestion(state, questions, org, msg.Body, now)
	case models.StepCompleted:
		reply = msgAlreadyCompleted
	default:
		slog.Error("Engine unknown conversation step", "step", state.Step.String(), "orgID", org.ID)
		reply = msgApology
	}
	if err != nil {
		// A side effect failed; the prior state is retained so the
		// respondent can retry the same message.
		e.sendReply(ctx, org, msg.From, msg.To, msgApology)
		return "", err
	}

	return e.finishStep(ctx, org, msg, state, reply, now)
}

// stepConsent handles the consent gate. Affirmative replies with a
// non-empty catalog create a session and move to the first question; a start
// command restates the invitation; every other reply terminates the
// conversation gracefully.
func (e *Engine) stepConsent(state *models.ConversationState, questions []models.Question, org models.Organization, normalizedBody string, now time.Time) (string, error) {
	if startTokens[normalizedBody] {
		// An explicit start command restates the invitation; it is not a
		// consent decision either way.
		return consentPrompt(org.Name), nil
	}
	if !affirmativeTokens[normalizedBody] {
		slog.Info("Engine consent declined", "orgID", org.ID, "from", state.PhoneNumber)
		state.Step = models.CompletedStep()
		metrics.ConversationsCompleted.Inc()
		return msgDeclined, nil
	}

	if len(questions) == 0 {
		slog.Info("Engine consent given but catalog empty", "orgID", org.ID, "from", state.PhoneNumber)
		state.Step = models.CompletedStep()
		metrics.ConversationsCompleted.Inc()
		return fmt.Sprintf(msgNoQuestions, org.Name), nil
	}

	session := models.FeedbackSession{
		ID:          uuid.NewString(),
		OrgID:       org.ID,
		PhoneNumber: state.PhoneNumber,
		Status:      models.SessionStatusInProgress,
		Origin:      "sms",
		StartedAt:   now,
	}
	if err := e.store.CreateSession(session); err != nil {
		slog.Error("Engine failed to create session", "error", err, "orgID", org.ID, "from", state.PhoneNumber)
		return "", fmt.Errorf("create feedback session: %w", err)
	}
	metrics.SessionsCreated.Inc()

	state.Consented = true
	state.SessionID = session.ID
	state.Step = models.QuestionStep(0)
	slog.Info("Engine consent accepted, session started", "orgID", org.ID, "sessionID", session.ID, "questions", len(questions))
	return FormatQuestion(questions[0], 1, len(questions)), nil
}

// stepQuestion validates the answer to the current question. Rejected
// answers re-prompt without a state change (the machine's only self-loop);
// accepted answers persist a response and advance or complete the survey.
func (e *Engine) stepQuestion(state *models.ConversationState, questions []models.Question, org models.Organization, rawBody string, now time.Time) (string, error) {
	i := state.Step.Index
	if i >= len(questions) {
		// The catalog shrank under an active conversation. Close out rather
		// than asking a question that no longer exists.
		slog.Warn("Engine question index beyond catalog, completing", "orgID", org.ID, "index", i, "catalog", len(questions))
		return e.complete(state, org, now)
	}
	q := questions[i]

	result := validate.Validate(q, rawBody)
	if !result.Accepted {
		slog.Debug("Engine answer rejected", "orgID", org.ID, "questionID", q.ID, "reason", result.Reason)
		metrics.ValidationRejections.Inc()
		return result.Reason + "\n\n" + FormatQuestion(q, i+1, len(questions)), nil
	}

	snapshot, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("snapshot question %s: %w", q.ID, err)
	}
	resp := models.FeedbackResponse{
		ID:               uuid.NewString(),
		SessionID:        state.SessionID,
		QuestionID:       q.ID,
		Value:            result.Value,
		Score:            result.Score,
		Category:         q.Category,
		QuestionSnapshot: string(snapshot),
		CreatedAt:        now,
	}
	if err := e.store.AddFeedbackResponse(resp); err != nil {
		slog.Error("Engine failed to persist response", "error", err, "orgID", org.ID, "questionID", q.ID)
		return "", fmt.Errorf("persist feedback response: %w", err)
	}

	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	state.Answers[q.ID] = result.Value
	slog.Info("Engine answer accepted", "orgID", org.ID, "questionID", q.ID, "index", i)

	if i+1 < len(questions) {
		state.Step = models.QuestionStep(i + 1)
		return FormatQuestion(questions[i+1], i+2, len(questions)), nil
	}
	return e.complete(state, org, now)
}

// complete moves the conversation to the terminal step and finalizes the
// session with the aggregate score.
func (e *Engine) complete(state *models.ConversationState, org models.Organization, now time.Time) (string, error) {
	score := sumNumericAnswers(state.Answers)
	if state.SessionID != "" {
		if err := e.store.CompleteSession(state.SessionID, score, now); err != nil {
			slog.Error("Engine failed to complete session", "error", err, "sessionID", state.SessionID)
			return "", fmt.Errorf("complete feedback session: %w", err)
		}
	}
	state.Step = models.CompletedStep()
	metrics.ConversationsCompleted.Inc()
	slog.Info("Engine conversation completed", "orgID", org.ID, "sessionID", state.SessionID, "score", score)
	return fmt.Sprintf(msgClosing, org.Name), nil
}

// finishStep persists the advanced state, then sends the reply. The state is
// saved before sending: delivery failure never rolls back a transition.
func (e *Engine) finishStep(ctx context.Context, org models.Organization, msg models.InboundMessage, state *models.ConversationState, reply string, now time.Time) (string, error) {
	state.LastMessageID = msg.ProviderMessageID
	state.UpdatedAt = now
	if err := e.store.SaveConversationState(*state); err != nil {
		slog.Error("Engine failed to save conversation state", "error", err, "stateID", state.ID)
		e.sendReply(ctx, org, msg.From, msg.To, msgApology)
		return "", fmt.Errorf("save conversation state: %w", err)
	}

	e.sendReply(ctx, org, msg.From, msg.To, reply)
	return reply, nil
}

// sendReply sends one outbound message and appends it to the conversation
// log. Send failures are recorded with an error marker and surfaced only in
// logs; they never affect conversation state.
func (e *Engine) sendReply(ctx context.Context, org models.Organization, to, senderID, body string) {
	result, err := e.sender.SendMessage(ctx, org, to, body)
	if err != nil {
		slog.Error("Engine outbound send failed", "error", err, "orgID", org.ID, "to", to)
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		e.logMessage(org, to, senderID, models.DirectionOut, body, result.ProviderMessageID, err.Error())
		return
	}
	metrics.MessagesSent.WithLabelValues("delivered").Inc()
	e.logMessage(org, to, senderID, models.DirectionOut, body, result.ProviderMessageID, "")
}

// logMessage appends one entry to the conversation audit log. The log is
// never consulted for control flow, so failures are logged and swallowed.
func (e *Engine) logMessage(org models.Organization, phone, senderID string, dir models.Direction, content, providerMessageID, sendError string) {
	entry := models.ConversationLogEntry{
		ID:                uuid.NewString(),
		OrgID:             org.ID,
		PhoneNumber:       phone,
		SenderID:          senderID,
		Direction:         dir,
		Content:           content,
		ProviderMessageID: providerMessageID,
		SendError:         sendError,
		CreatedAt:         time.Now(),
	}
	if err := e.store.AddConversationLog(entry); err != nil {
		slog.Error("Engine failed to append conversation log", "error", err, "orgID", org.ID, "direction", dir)
	}
}

// newState creates the implicit initial state for a tuple at the consent step.
func (e *Engine) newState(org models.Organization, msg models.InboundMessage, now time.Time) *models.ConversationState {
	slog.Debug("Engine creating initial conversation state", "orgID", org.ID, "from", msg.From)
	return &models.ConversationState{
		ID:          uuid.NewString(),
		OrgID:       org.ID,
		PhoneNumber: msg.From,
		SenderID:    msg.To,
		Step:        models.ConsentStep(),
		Answers:     make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// sumNumericAnswers computes the aggregate session score: the sum of all
// captured answers whose stored value is an integer. Non-numeric choice and
// free-text answers are stored but never aggregated.
func sumNumericAnswers(answers map[string]string) int {
	total := 0
	for _, v := range answers {
		if n, err := strconv.Atoi(v); err == nil {
			total += n
		}
	}
	return total
}
