package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// webhookPayload is the JSON body POSTed to the configured webhook when an
// approval is registered. The receiver answers later through the resolve
// endpoint.
type webhookPayload struct {
	ApprovalID     string   `json:"approval_id"`
	RequestID      string   `json:"request_id,omitempty"`
	ToolName       string   `json:"tool_name"`
	Category       string   `json:"category"`
	Severity       string   `json:"severity"`
	Reason         string   `json:"reason"`
	CreatedAt      string   `json:"created_at"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Methods        []string `json:"methods"`
}

// WebhookNotifier delivers pending approvals to an external HTTP receiver.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to the given URL.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify POSTs the ticket to the webhook. A non-2xx response is an error;
// the caller only logs it, since the timeout governs unanswered approvals.
func (n *WebhookNotifier) Notify(ctx context.Context, t *Ticket) error {
	methods := make([]string, len(t.Methods))
	for i, m := range t.Methods {
		methods[i] = string(m)
	}

	body, err := json.Marshal(webhookPayload{
		ApprovalID:     t.ID,
		RequestID:      t.RequestID,
		ToolName:       t.ToolName,
		Category:       t.Category,
		Severity:       t.Severity,
		Reason:         t.Reason,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		TimeoutSeconds: int(t.Timeout / time.Second),
		Methods:        methods,
	})
	if err != nil {
		return fmt.Errorf("Notify: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Notify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("Notify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Notify: webhook returned %d", resp.StatusCode)
	}

	n.logger.Debug("webhook notified", zap.String("approval_id", t.ID))
	return nil
}
