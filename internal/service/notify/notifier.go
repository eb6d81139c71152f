// Package notify emails the site owner when a visitor shares a brief.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/resend/resend-go/v2"

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/logger"
	"github.com/kolson/planner/backend/internal/model/brief"
)

const (
	defaultFrom    = "Project Planner <planner@resend.dev>"
	defaultTimeout = 10 * time.Second
)

// Notifier submits brief summaries to the Resend email API.
type Notifier struct {
	client  *resend.Client
	from    string
	to      string
	timeout time.Duration
	log     *log.Logger
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithBaseURL points the Resend client at another endpoint.
func WithBaseURL(raw string) Option {
	return func(n *Notifier) {
		if n.client == nil {
			return
		}
		if u, err := url.Parse(strings.TrimSuffix(raw, "/") + "/"); err == nil {
			n.client.BaseURL = u
		}
	}
}

// New builds a notifier. Without an API key or recipient it is a silent no-op.
func New(cfg config.NotifyConfig, opts ...Option) *Notifier {
	n := &Notifier{
		from:    cfg.From,
		to:      cfg.To,
		timeout: cfg.Timeout,
		log:     logger.For("notify"),
	}
	if n.from == "" {
		n.from = defaultFrom
	}
	if n.timeout <= 0 {
		n.timeout = defaultTimeout
	}
	if cfg.Enabled() {
		n.client = resend.NewClient(cfg.ResendAPIKey)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether notifications will actually be sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.client != nil
}

// Notify sends the brief summary to the owner. Failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, contactEmail string, b *brief.Brief, shareURL string) {
	if !n.Enabled() || b == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: Subject(contactEmail),
		ReplyTo: contactEmail,
		Text:    Body(contactEmail, b, shareURL),
	}
	resp, err := n.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		n.log.Warn("brief notification failed", "session", b.SessionID, "err", err)
		return
	}
	n.log.Info("brief notification sent", "session", b.SessionID, "email_id", resp.Id)
}

// Subject is the email subject for a shared brief.
func Subject(contactEmail string) string {
	if contactEmail == "" {
		return "New project brief shared"
	}
	return fmt.Sprintf("New project brief from %s", contactEmail)
}

// Body renders the plain-text summary of b.
func Body(contactEmail string, b *brief.Brief, shareURL string) string {
	var sb strings.Builder
	sb.WriteString("A visitor shared their project brief.\n\n")
	if contactEmail != "" {
		fmt.Fprintf(&sb, "Contact: %s\n", contactEmail)
	}
	fmt.Fprintf(&sb, "Status: %s\n", b.Status)
	fmt.Fprintf(&sb, "\nSummary: %s\n", valueOr(b.Summary, "Not captured yet"))

	writeList(&sb, "Goals", b.Goals)
	writeList(&sb, "Features", b.Features)

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Audience: %s\n", valueOr(b.TargetAudience, "-"))
	fmt.Fprintf(&sb, "Industry: %s\n", valueOr(b.Industry, "-"))
	fmt.Fprintf(&sb, "Timeline: %s\n", valueOr(b.Timeline, "-"))
	fmt.Fprintf(&sb, "Budget: %s\n", valueOr(b.BudgetSignals, "-"))
	fmt.Fprintf(&sb, "Tech: %s\n", valueOr(b.TechPreferences, "-"))

	if shareURL != "" {
		fmt.Fprintf(&sb, "\nView the brief: %s\n", shareURL)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	fmt.Fprintf(sb, "\n%s:\n", title)
	if len(items) == 0 {
		sb.WriteString("- none yet\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func valueOr(val *string, fallback string) string {
	if val == nil || *val == "" {
		return fallback
	}
	return *val
}
