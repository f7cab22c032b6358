package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends alerts as plain-text mail. smtp.SendMail upgrades the
// connection with STARTTLS when the server offers it; PLAIN auth is used
// only when a password is configured.
type SMTPNotifier struct {
	addr     string
	from     string
	username string
	password string
	now      func() time.Time
	send     sendFunc
}

// NewSMTPNotifier returns a notifier relaying through addr (host:port).
func NewSMTPNotifier(addr, from, username, password string) *SMTPNotifier {
	return &SMTPNotifier{
		addr:     addr,
		from:     from,
		username: username,
		password: password,
		now:      time.Now,
		send:     smtp.SendMail,
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, a alerts.Alert) Result {
	if len(a.Recipients) == 0 {
		return Failed("no recipients")
	}
	var auth smtp.Auth
	if n.password != "" {
		host, _, err := net.SplitHostPort(n.addr)
		if err != nil {
			return Failed(fmt.Sprintf("smtp: endpoint %q: %v", n.addr, err))
		}
		auth = smtp.PlainAuth("", n.username, n.password, host)
	}

	msg := n.message(a)
	done := make(chan error, 1)
	go func() { done <- n.send(n.addr, auth, n.from, a.Recipients, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return Failed(fmt.Sprintf("smtp: %v", err))
		}
		return Delivered()
	case <-ctx.Done():
		return Failed(fmt.Sprintf("smtp: %v", ctx.Err()))
	}
}

func (n *SMTPNotifier) message(a alerts.Alert) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", n.from)
	header("To", strings.Join(a.Recipients, ", "))
	header("Subject", sanitizeHeader(a.Subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(a.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
