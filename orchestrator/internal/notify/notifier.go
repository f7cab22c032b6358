package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
)

// Status is the verdict of one delivery attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Result is what a Notifier reports for one alert.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Delivered is the successful Result.
func Delivered() Result { return Result{Status: StatusDelivered} }

// Failed is an unsuccessful Result carrying reason.
func Failed(reason string) Result { return Result{Status: StatusFailed, Reason: reason} }

// OK reports whether the alert was delivered.
func (r Result) OK() bool { return r.Status == StatusDelivered }

// Notifier delivers a single alert.
type Notifier interface {
	Notify(ctx context.Context, a alerts.Alert) Result
}

// New builds the notifier selected by cfg.Transport.
func New(cfg config.NotifierConfig) (Notifier, error) {
	switch cfg.Transport {
	case "", "log":
		return NewLogNotifier(slog.Default()), nil
	case "smtp":
		return NewSMTPNotifier(cfg.Endpoint, cfg.From, cfg.Username(), cfg.Password()), nil
	case "webhook":
		url := cfg.Webhook.URL()
		if url == "" {
			return nil, fmt.Errorf("notify: %w: webhook url env %q is empty", config.ErrInvalid, cfg.Webhook.URLEnv)
		}
		return NewWebhookNotifier(cfg.Webhook.Type, url, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("notify: %w: unknown transport %q", config.ErrInvalid, cfg.Transport)
}

// LogNotifier writes alerts to the structured log. It always delivers.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, a alerts.Alert) Result {
	n.logger.WarnContext(ctx, "alert",
		"subject", a.Subject,
		"severity", a.Severity,
		"recipients", a.Recipients,
		"body", a.Body,
	)
	return Delivered()
}
