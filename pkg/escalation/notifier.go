package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

//go:generate mockery --name=Notifier --dir=. --output=./mocks --filename=notifier_mock.go --case=underscore --with-expecter

// Notifier delivers one escalation notification to the human-oversight
// channel. Implementations must respect context cancellation.
type Notifier interface {
	Notify(ctx context.Context, incident Incident) error
	Name() string
}

// WebhookNotifier posts the incident as JSON to the oversight collaborator's
// endpoint.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

func NewWebhookNotifier(url string, client *http.Client, timeout time.Duration) *WebhookNotifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{url: url, client: client, timeout: timeout}
}

func (n *WebhookNotifier) Name() string {
	return "webhook"
}

func (n *WebhookNotifier) Notify(ctx context.Context, incident Incident) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("escalation delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("escalation endpoint returned status %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}
