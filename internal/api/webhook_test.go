package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/TextLoop/TextLoop/internal/flow"
	"github.com/TextLoop/TextLoop/internal/models"
	"github.com/TextLoop/TextLoop/internal/store"
)

const webhookURL = "http://textloop.example/webhook/sms"

// nopSender discards outbound messages; webhook tests only exercise the HTTP
// contract, not delivery.
type nopSender struct{}

func (nopSender) SendMessage(ctx context.Context, org models.Organization, to, body string) (models.SendResult, error) {
	return models.SendResult{Delivered: true, ProviderMessageID: "SM000"}, nil
}

func newTestServer(t *testing.T, org models.Organization) (*store.InMemoryStore, http.Handler) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.AddOrganization(org); err != nil {
		t.Fatalf("AddOrganization: %v", err)
	}
	engine := flow.NewEngine(st, nopSender{})
	srv := NewServer(st, engine, WithoutRateLimit())
	return st, srv.Handler()
}

func testOrg() models.Organization {
	return models.Organization{
		ID:         "org-1",
		Name:       "Lakeside Clinic",
		SenderID:   "12025550100",
		SMSEnabled: true,
	}
}

func postForm(t *testing.T, handler http.Handler, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// signForm computes the provider's form-request signature: HMAC-SHA1 over the
// request URL concatenated with each form key and value in sorted key order.
func signForm(secret, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(requestURL))
	for _, k := range keys {
		mac.Write([]byte(k + form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookRejectsNonPost(t *testing.T) {
	_, handler := newTestServer(t, testOrg())
	req := httptest.NewRequest(http.MethodGet, webhookURL, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookMissingFields(t *testing.T) {
	_, handler := newTestServer(t, testOrg())
	form := url.Values{"Body": {"yes"}}
	rec := postForm(t, handler, form, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookUnknownSender(t *testing.T) {
	st, handler := newTestServer(t, testOrg())
	form := url.Values{
		"From": {"16135550199"},
		"To":   {"19995550000"},
		"Body": {"yes"},
	}
	rec := postForm(t, handler, form, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	state, _ := st.GetConversationState("org-1", "16135550199", "19995550000")
	if state != nil {
		t.Error("unknown sender mutated conversation state")
	}
}

func TestWebhookInvalidPhoneNumber(t *testing.T) {
	_, handler := newTestServer(t, testOrg())
	form := url.Values{
		"From": {"not-a-number"},
		"To":   {"12025550100"},
		"Body": {"yes"},
	}
	rec := postForm(t, handler, form, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookSignatureMismatch(t *testing.T) {
	org := testOrg()
	org.WebhookSecret = "test-webhook-secret"
	_, handler := newTestServer(t, org)

	form := url.Values{
		"From": {"16135550199"},
		"To":   {"12025550100"},
		"Body": {"yes"},
	}
	rec := postForm(t, handler, form, map[string]string{SignatureHeader: "bm90LXRoZS1zaWduYXR1cmU="})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookValidSignature(t *testing.T) {
	org := testOrg()
	org.WebhookSecret = "test-webhook-secret"
	st, handler := newTestServer(t, org)

	form := url.Values{
		"From":       {"16135550199"},
		"To":         {"12025550100"},
		"Body":       {"yes"},
		"MessageSid": {"SMS1"},
	}
	sig := signForm(org.WebhookSecret, webhookURL, form)
	rec := postForm(t, handler, form, map[string]string{SignatureHeader: sig})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	state, _ := st.GetConversationState("org-1", "16135550199", "12025550100")
	if state == nil {
		t.Error("signed request did not reach the engine")
	}
}

func TestWebhookUnsignedRequestTolerated(t *testing.T) {
	// No webhook secret configured: unsigned callbacks are accepted.
	st, handler := newTestServer(t, testOrg())
	form := url.Values{
		"From":       {"+1 (613) 555-0199"},
		"To":         {"12025550100"},
		"Body":       {"yes"},
		"MessageSid": {"SMS1"},
	}
	rec := postForm(t, handler, form, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %q, want ok", resp.Status)
	}

	// The from number was canonicalized to digits before reaching the engine.
	state, _ := st.GetConversationState("org-1", "16135550199", "12025550100")
	if state == nil {
		t.Fatal("no conversation state created")
	}
	if state.LastMessageID != "SMS1" {
		t.Errorf("state.LastMessageID = %q, want SMS1", state.LastMessageID)
	}
}

func TestWebhookJSONBody(t *testing.T) {
	st, handler := newTestServer(t, testOrg())
	payload := `{"from":"16135550199","to":"12025550100","text":"yes","message_id":"m-1"}`
	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	state, _ := st.GetConversationState("org-1", "16135550199", "12025550100")
	if state == nil {
		t.Fatal("no conversation state created from JSON payload")
	}
	if state.LastMessageID != "m-1" {
		t.Errorf("state.LastMessageID = %q, want m-1", state.LastMessageID)
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	_, handler := newTestServer(t, testOrg())
	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(`{"from":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t, testOrg())
	req := httptest.NewRequest(http.MethodGet, "http://textloop.example/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health body = %s", rec.Body.String())
	}
}
