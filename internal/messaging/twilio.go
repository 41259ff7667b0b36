// Package messaging provides the outbound SMS delivery abstraction.
//
// This file implements the Sender interface on the Twilio REST API. Each
// organization carries its own account credentials, so REST clients are
// created lazily and cached per account.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/TextLoop/TextLoop/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Provider message statuses that count as delivery failure at send time.
const (
	statusFailed      = "failed"
	statusUndelivered = "undelivered"
)

// TwilioSender sends SMS messages through the Twilio API using
// per-organization credentials.
type TwilioSender struct {
	mu      sync.Mutex
	clients map[string]*twilio.RestClient // keyed by account SID
}

// Compile-time check that TwilioSender implements Sender.
var _ Sender = (*TwilioSender)(nil)

// NewTwilioSender creates a TwilioSender with an empty client cache.
func NewTwilioSender() *TwilioSender {
	return &TwilioSender{clients: make(map[string]*twilio.RestClient)}
}

// clientFor returns the cached REST client for the organization's account,
// creating one on first use.
func (t *TwilioSender) clientFor(org models.Organization) (*twilio.RestClient, error) {
	if org.AccountSID == "" || org.AuthToken == "" {
		return nil, fmt.Errorf("organization %s has no SMS credentials configured", org.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if client, ok := t.clients[org.AccountSID]; ok {
		return client, nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: org.AccountSID,
		Password: org.AuthToken,
	})
	t.clients[org.AccountSID] = client
	slog.Debug("TwilioSender created REST client", "orgID", org.ID)
	return client, nil
}

// SendMessage sends one SMS through Twilio. The From number is the
// organization's sender identifier.
func (t *TwilioSender) SendMessage(ctx context.Context, org models.Organization, to, body string) (models.SendResult, error) {
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioSender SendMessage validation error", "error", err, "to", to)
		return models.SendResult{}, err
	}

	client, err := t.clientFor(org)
	if err != nil {
		slog.Error("TwilioSender SendMessage client error", "error", err, "orgID", org.ID)
		return models.SendResult{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + canonicalTo)
	params.SetFrom(org.SenderID)
	params.SetBody(body)

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender SendMessage failed", "error", err, "to", canonicalTo, "orgID", org.ID)
		return models.SendResult{}, fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}

	result := models.SendResult{Delivered: true}
	if resp.Sid != nil {
		result.ProviderMessageID = *resp.Sid
	}
	if resp.Status != nil && (*resp.Status == statusFailed || *resp.Status == statusUndelivered) {
		result.Delivered = false
		slog.Warn("TwilioSender message not delivered", "to", canonicalTo, "status", *resp.Status)
		return result, ErrNotDelivered
	}

	slog.Debug("TwilioSender message sent", "to", canonicalTo, "sid", result.ProviderMessageID)
	return result, nil
}
