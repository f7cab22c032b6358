package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
)

// WebhookNotifier posts alerts as JSON to a Slack, Teams or generic HTTP
// endpoint. Any HTTP status >= 400 is a failure.
type WebhookNotifier struct {
	kind   string
	url    string
	client *http.Client
}

// NewWebhookNotifier returns a notifier for kind slack | teams | http.
func NewWebhookNotifier(kind, url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a alerts.Alert) Result {
	var payload any
	switch n.kind {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*%s %s*\n%s", severityLabel(a.Severity), a.Subject, a.Body),
		}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    a.Subject,
			"title":      a.Subject,
			"text":       a.Body,
		}
	case "http", "":
		payload = map[string]any{"alert": a}
	default:
		return Failed(fmt.Sprintf("webhook: unknown type %q", n.kind))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Failed(fmt.Sprintf("webhook: encode: %v", err))
	}
	if err := n.post(ctx, body); err != nil {
		return Failed(fmt.Sprintf("webhook: %v", err))
	}
	return Delivered()
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "D32F2F"
	case "warning":
		return "F9A825"
	default:
		return "1976D2"
	}
}
