// Package api provides the HTTP surface of TextLoop.
//
// This file implements the inbound SMS webhook: provider callback
// authentication, organization resolution by sender identifier, message
// field normalization, and exactly one engine invocation per valid inbound
// message.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TextLoop/TextLoop/internal/messaging"
	"github.com/TextLoop/TextLoop/internal/metrics"
	"github.com/TextLoop/TextLoop/internal/models"
	twilioclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// webhookPayload is the JSON shape of an inbound callback. Form-encoded
// callbacks use the provider's field names (From/To/Body/MessageSid).
type webhookPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Body      string `json:"body,omitempty"` // accepted as an alias for text
	MessageID string `json:"message_id,omitempty"`
}

// webhookHandler processes one provider callback. Per the ingress contract,
// non-2xx responses are reserved for authentication failures and
// unresolvable organizations; everything else (including validation
// re-prompts and data-store failures inside the engine) answers 200.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook", "method", r.Method, "remote", r.RemoteAddr)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	msg, rawBody, ok := s.parseInbound(w, r)
	if !ok {
		return
	}

	// Resolve the organization by the sender identifier the respondent
	// replied to. Unknown senders are rejected with no state mutation.
	org, err := s.store.GetOrganizationBySender(msg.To)
	if err != nil {
		slog.Error("Server.webhookHandler: organization lookup failed", "error", err, "senderID", msg.To)
		metrics.WebhookRequests.WithLabelValues("unknown_sender").Inc()
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Organization lookup failed"))
		return
	}
	if org == nil {
		slog.Warn("Server.webhookHandler: no organization for sender", "senderID", msg.To)
		metrics.WebhookRequests.WithLabelValues("unknown_sender").Inc()
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown sender identifier"))
		return
	}

	// Authenticate the callback when both a signature and an
	// organization-scoped secret are present. Providers that do not sign are
	// tolerated; a mismatched signature is always a hard rejection.
	if sig := r.Header.Get(SignatureHeader); sig != "" && org.WebhookSecret != "" {
		if !validSignature(r, rawBody, org.WebhookSecret, sig) {
			slog.Warn("Server.webhookHandler: signature mismatch", "orgID", org.ID, "senderID", msg.To)
			metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid signature"))
			return
		}
	}

	canonicalFrom, err := messaging.CanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("Server.webhookHandler: invalid from number", "error", err, "from", msg.From)
		metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone number"))
		return
	}
	msg.From = canonicalFrom

	if s.limiter != nil && !s.limiter.Allow("phone:"+canonicalFrom) {
		slog.Warn("Server.webhookHandler: rate limited", "from", canonicalFrom)
		metrics.WebhookRequests.WithLabelValues("rate_limited").Inc()
		writeJSONResponse(w, http.StatusTooManyRequests, models.Error("Too many requests"))
		return
	}

	// Engine errors are data-store failures already answered with a retry
	// prompt; the webhook still acknowledges receipt so the provider does
	// not re-deliver on its own schedule.
	if _, err := s.engine.HandleInbound(r.Context(), *org, msg); err != nil {
		slog.Error("Server.webhookHandler: engine processing failed", "error", err, "orgID", org.ID, "from", msg.From)
	}

	metrics.WebhookRequests.WithLabelValues("ok").Inc()
	writeJSONResponse(w, http.StatusOK, models.Success())
}

// parseInbound extracts the normalized inbound message from a form-encoded
// or JSON request body. It writes the error response itself when parsing
// fails.
func (s *Server) parseInbound(w http.ResponseWriter, r *http.Request) (models.InboundMessage, []byte, bool) {
	var msg models.InboundMessage
	var rawBody []byte

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			slog.Warn("Server.webhookHandler: failed to read body", "error", err)
			metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
			return msg, nil, false
		}
		rawBody = body

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			slog.Warn("Server.webhookHandler: invalid JSON", "error", err)
			metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return msg, nil, false
		}
		text := payload.Text
		if text == "" {
			text = payload.Body
		}
		msg = models.InboundMessage{
			From:              payload.From,
			To:                payload.To,
			Body:              text,
			ProviderMessageID: payload.MessageID,
		}
	} else {
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
			metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
			return msg, nil, false
		}
		msg = models.InboundMessage{
			From:              r.PostFormValue("From"),
			To:                r.PostFormValue("To"),
			Body:              r.PostFormValue("Body"),
			ProviderMessageID: r.PostFormValue("MessageSid"),
		}
	}

	if msg.From == "" || msg.To == "" {
		slog.Warn("Server.webhookHandler: missing required fields", "from_set", msg.From != "", "to_set", msg.To != "")
		metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields"))
		return msg, nil, false
	}
	return msg, rawBody, true
}

// validSignature checks the provider signature against the organization's
// webhook secret using the provider's request-signing scheme.
func validSignature(r *http.Request, rawBody []byte, secret, signature string) bool {
	validator := twilioclient.NewRequestValidator(secret)
	url := requestURL(r)

	if rawBody != nil {
		return validator.ValidateBody(url, rawBody, signature)
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return validator.Validate(url, params, signature)
}

// requestURL reconstructs the public URL the provider signed.
func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
			scheme = fwd
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
