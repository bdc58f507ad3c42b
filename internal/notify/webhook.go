// Package notify forwards settlement events to an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/events"
)

// Notification is the body posted for one event.
type Notification struct {
	ID         string         `json:"id"`
	Stream     string         `json:"stream"`
	Type       string         `json:"type"`
	Recipients []string       `json:"recipients"`
	Text       string         `json:"text"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

// WebhookClient posts notifications to a single URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewWebhookClient(url string, log *zap.Logger) *WebhookClient {
	return &WebhookClient{
		url: strings.TrimRight(url, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Forward posts event to the webhook. Events without parties are skipped.
func (c *WebhookClient) Forward(ctx context.Context, stream string, event events.Event) error {
	if len(event.Parties) == 0 {
		return nil
	}

	body, err := json.Marshal(Notification{
		ID:         uuid.NewString(),
		Stream:     stream,
		Type:       event.Type,
		Recipients: event.Parties,
		Text:       Describe(event),
		Payload:    event.Payload,
		Timestamp:  event.Timestamp,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Describe renders a one-line human summary of event.
func Describe(event events.Event) string {
	id, _ := event.Payload["escrow_id"].(string)
	if id == "" {
		id, _ = event.Payload["agreement_id"].(string)
	}
	if id == "" {
		id, _ = event.Payload["property_id"].(string)
	}

	switch event.Type {
	case events.EventEscrowFunded:
		return fmt.Sprintf("Escrow %s was funded", id)
	case events.EventEscrowReleased:
		return fmt.Sprintf("Escrow %s was released to the beneficiary", id)
	case events.EventEscrowRefunded:
		return fmt.Sprintf("Escrow %s was refunded to the depositor", id)
	case events.EventEscrowDisputed, events.EventAgreementDisputed:
		reason, _ := event.Payload["reason"].(string)
		return fmt.Sprintf("%s is disputed: %s", id, reason)
	case events.EventDisputeResolved:
		return fmt.Sprintf("Dispute on %s resolved: %v", id, event.Payload["outcome"])
	case events.EventRentPaid:
		return fmt.Sprintf("Rent paid on agreement %s", id)
	case events.EventAgreementSigned:
		return fmt.Sprintf("Agreement %s was signed by %v", id, event.Payload["signer"])
	case events.EventAgreementActivated:
		return fmt.Sprintf("Agreement %s is active", id)
	}
	if id != "" {
		return fmt.Sprintf("%s: %s", strings.ReplaceAll(event.Type, "_", " "), id)
	}
	return strings.ReplaceAll(event.Type, "_", " ")
}
