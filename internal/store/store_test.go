package store

import (
	"testing"
	"time"

	"github.com/TextLoop/TextLoop/internal/models"
)

func TestGetOrganizationBySender(t *testing.T) {
	st := NewInMemoryStore()
	if err := st.AddOrganization(models.Organization{
		ID: "org-1", Name: "Lakeside Clinic", SenderID: "12025550100", SMSEnabled: true,
	}); err != nil {
		t.Fatalf("AddOrganization: %v", err)
	}
	if err := st.AddOrganization(models.Organization{
		ID: "org-2", Name: "Dormant Org", SenderID: "12025550101", SMSEnabled: false,
	}); err != nil {
		t.Fatalf("AddOrganization: %v", err)
	}

	org, err := st.GetOrganizationBySender("12025550100")
	if err != nil {
		t.Fatalf("GetOrganizationBySender: %v", err)
	}
	if org == nil || org.ID != "org-1" {
		t.Errorf("org = %+v, want org-1", org)
	}

	// Unknown sender and disabled org both resolve to nothing.
	org, err = st.GetOrganizationBySender("19995550000")
	if err != nil || org != nil {
		t.Errorf("unknown sender: org=%+v err=%v, want nil, nil", org, err)
	}
	org, err = st.GetOrganizationBySender("12025550101")
	if err != nil || org != nil {
		t.Errorf("disabled org: org=%+v err=%v, want nil, nil", org, err)
	}
}

func TestListActiveQuestionsOrderingAndFilter(t *testing.T) {
	st := NewInMemoryStore()
	questions := []models.Question{
		{ID: "q2", OrgID: "org-1", Text: "second", Type: models.QuestionTypeText, OrderIndex: 2, Active: true},
		{ID: "q1", OrgID: "org-1", Text: "first", Type: models.QuestionTypeText, OrderIndex: 1, Active: true},
		{ID: "q3", OrgID: "org-1", Text: "retired", Type: models.QuestionTypeText, OrderIndex: 0, Active: false},
		{ID: "qx", OrgID: "org-2", Text: "other org", Type: models.QuestionTypeText, OrderIndex: 0, Active: true},
	}
	for _, q := range questions {
		if err := st.AddQuestion(q); err != nil {
			t.Fatalf("AddQuestion: %v", err)
		}
	}

	got, err := st.ListActiveQuestions("org-1")
	if err != nil {
		t.Fatalf("ListActiveQuestions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "q1" || got[1].ID != "q2" {
		t.Errorf("order = %s, %s, want q1, q2", got[0].ID, got[1].ID)
	}
}

func TestAddQuestionRejectsUnknownType(t *testing.T) {
	st := NewInMemoryStore()
	err := st.AddQuestion(models.Question{ID: "q1", OrgID: "org-1", Text: "?", Type: "emoji", Active: true})
	if err != models.ErrInvalidQuestionType {
		t.Errorf("err = %v, want ErrInvalidQuestionType", err)
	}
}

func TestConversationStateLatestWins(t *testing.T) {
	st := NewInMemoryStore()
	base := time.Now()
	old := models.ConversationState{
		ID: "state-old", OrgID: "org-1", PhoneNumber: "16135550199", SenderID: "12025550100",
		Step: models.CompletedStep(), UpdatedAt: base,
	}
	fresh := models.ConversationState{
		ID: "state-new", OrgID: "org-1", PhoneNumber: "16135550199", SenderID: "12025550100",
		Step: models.ConsentStep(), UpdatedAt: base.Add(time.Minute),
	}
	if err := st.SaveConversationState(old); err != nil {
		t.Fatalf("SaveConversationState: %v", err)
	}
	if err := st.SaveConversationState(fresh); err != nil {
		t.Fatalf("SaveConversationState: %v", err)
	}

	got, err := st.GetConversationState("org-1", "16135550199", "12025550100")
	if err != nil {
		t.Fatalf("GetConversationState: %v", err)
	}
	if got == nil || got.ID != "state-new" {
		t.Errorf("state = %+v, want state-new", got)
	}

	// A different tuple sees nothing.
	got, err = st.GetConversationState("org-1", "16135550000", "12025550100")
	if err != nil || got != nil {
		t.Errorf("other tuple: state=%+v err=%v, want nil, nil", got, err)
	}
}

func TestSaveConversationStateCopiesAnswers(t *testing.T) {
	st := NewInMemoryStore()
	answers := map[string]string{"q1": "Good"}
	state := models.ConversationState{
		ID: "state-1", OrgID: "org-1", PhoneNumber: "16135550199", SenderID: "12025550100",
		Step: models.QuestionStep(1), Answers: answers, UpdatedAt: time.Now(),
	}
	if err := st.SaveConversationState(state); err != nil {
		t.Fatalf("SaveConversationState: %v", err)
	}

	// Mutating the caller's map must not leak into the stored copy.
	answers["q2"] = "tampered"
	got, err := st.GetConversationState("org-1", "16135550199", "12025550100")
	if err != nil {
		t.Fatalf("GetConversationState: %v", err)
	}
	if len(got.Answers) != 1 {
		t.Errorf("stored answers = %v, want the original single entry", got.Answers)
	}
}

func TestCompleteSession(t *testing.T) {
	st := NewInMemoryStore()
	started := time.Now()
	if err := st.CreateSession(models.FeedbackSession{
		ID: "sess-1", OrgID: "org-1", PhoneNumber: "16135550199",
		Status: models.SessionStatusInProgress, Origin: "sms", StartedAt: started,
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	completed := started.Add(2 * time.Minute)
	if err := st.CompleteSession("sess-1", 9, completed); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	session, err := st.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Status != models.SessionStatusCompleted {
		t.Errorf("status = %q, want completed", session.Status)
	}
	if session.Score != 9 {
		t.Errorf("score = %d, want 9", session.Score)
	}
	if session.CompletedAt == nil || !session.CompletedAt.Equal(completed) {
		t.Errorf("completedAt = %v, want %v", session.CompletedAt, completed)
	}
}

func TestAddFeedbackResponseIdempotentPerPair(t *testing.T) {
	st := NewInMemoryStore()
	first := models.FeedbackResponse{
		ID: "resp-1", SessionID: "sess-1", QuestionID: "q0", Value: "Good", CreatedAt: time.Now(),
	}
	if err := st.AddFeedbackResponse(first); err != nil {
		t.Fatalf("AddFeedbackResponse: %v", err)
	}

	// Same (session, question) pair again, e.g. a retried answer: no-op.
	retry := first
	retry.ID = "resp-2"
	retry.Value = "Bad"
	if err := st.AddFeedbackResponse(retry); err != nil {
		t.Fatalf("AddFeedbackResponse retry: %v", err)
	}

	other := models.FeedbackResponse{
		ID: "resp-3", SessionID: "sess-1", QuestionID: "q1", Value: "4", CreatedAt: time.Now(),
	}
	if err := st.AddFeedbackResponse(other); err != nil {
		t.Fatalf("AddFeedbackResponse other question: %v", err)
	}

	responses, _ := st.GetResponses()
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	if responses[0].Value != "Good" {
		t.Errorf("first pair value = %q, want the original Good", responses[0].Value)
	}
}

func TestCompleteSessionUnknownID(t *testing.T) {
	st := NewInMemoryStore()
	err := st.CompleteSession("missing", 0, time.Now())
	if err != models.ErrSessionNotFound {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}
