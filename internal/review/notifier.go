package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"herald/internal/content"
	"herald/pkg/email"
	"herald/pkg/logging"
)

// Event names sent to the lifecycle webhook.
const (
	EventContentGenerated = "content_generated"
	EventApproved         = "approved"
	EventRejected         = "rejected"
	EventAutoApproved     = "auto_approved"
	EventPublished        = "published"
)

// Notifier delivers a review request for a freshly drafted post.
type Notifier interface {
	NotifyDraft(ctx context.Context, post content.Post) error
	NotifyEvent(ctx context.Context, event string, post content.Post)
}

// EmailNotifier emails the reviewer a draft with signed action links.
type EmailNotifier struct {
	sender  *email.Sender
	issuer  *TokenIssuer
	to      string
	baseURL string
	logger  logging.Logger
}

type EmailNotifierConfig struct {
	Sender  *email.Sender
	Issuer  *TokenIssuer
	To      string
	BaseURL string
	Logger  logging.Logger
}

func NewEmailNotifier(cfg EmailNotifierConfig) *EmailNotifier {
	return &EmailNotifier{
		sender:  cfg.Sender,
		issuer:  cfg.Issuer,
		to:      cfg.To,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, post content.Post) error {
	if n.sender == nil || n.to == "" {
		return errors.New("email notifier not configured")
	}

	links, err := n.actionLinks(post.ID)
	if err != nil {
		return fmt.Errorf("build action links: %w", err)
	}

	body, err := renderReviewEmail(post, links)
	if err != nil {
		return fmt.Errorf("render review email: %w", err)
	}

	subject := "Tweet draft for review: " + post.ContextSummary
	if len(subject) > 120 {
		subject = subject[:120]
	}
	if err := n.sender.SendMail(ctx, n.to, subject, body); err != nil {
		return fmt.Errorf("send review email: %w", err)
	}

	n.logger.WithFields(logging.Fields{
		"post_id": post.ID,
		"to":      n.to,
	}).Info("Review email sent")
	return nil
}

func (n *EmailNotifier) actionLinks(contentID string) (ActionLinks, error) {
	var links ActionLinks
	for _, pair := range []struct {
		action Action
		dest   *string
	}{
		{ActionApprove, &links.Approve},
		{ActionReject, &links.Reject},
		{ActionRegenerate, &links.Regenerate},
	} {
		token, err := n.issuer.Issue(pair.action, contentID)
		if err != nil {
			return ActionLinks{}, err
		}
		*pair.dest = fmt.Sprintf("%s/action/%s", n.baseURL, token)
	}
	links.Review = fmt.Sprintf("%s/review/%s", n.baseURL, contentID)
	return links, nil
}

// WebhookNotifier posts lifecycle events to an external automation hook.
type WebhookNotifier struct {
	client *http.Client
	url    string
	secret string
	logger logging.Logger
}

func NewWebhookNotifier(url, secret string, logger logging.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
		secret: secret,
		logger: logger,
	}
}

type webhookPayload struct {
	Event        string    `json:"event"`
	ContentID    string    `json:"content_id"`
	Text         string    `json:"text"`
	Status       string    `json:"status"`
	AutoApproved bool      `json:"auto_approved,omitempty"`
	PostID       string    `json:"post_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, event string, post content.Post) error {
	if n.url == "" {
		return nil
	}

	payload, err := json.Marshal(webhookPayload{
		Event:        event,
		ContentID:    post.ID,
		Text:         post.Text,
		Status:       string(post.Status),
		AutoApproved: post.AutoApproved,
		PostID:       post.PostID,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Webhook-Secret", n.secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: unexpected status %s", resp.Status)
	}
	return nil
}

// Dispatcher fans notifications out to whichever channels are configured.
// Webhook failures are logged, never propagated: the automation hook is
// best effort, while the review email is load bearing.
type Dispatcher struct {
	email   *EmailNotifier
	webhook *WebhookNotifier
	logger  logging.Logger
}

type DispatcherConfig struct {
	EmailNotifier   *EmailNotifier
	WebhookNotifier *WebhookNotifier
	Logger          logging.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		email:   cfg.EmailNotifier,
		webhook: cfg.WebhookNotifier,
		logger:  cfg.Logger,
	}
}

func (d *Dispatcher) NotifyDraft(ctx context.Context, post content.Post) error {
	d.NotifyEvent(ctx, EventContentGenerated, post)

	if d.email == nil {
		d.logger.WithField("post_id", post.ID).Warn("Review enabled but email notifier missing")
		return nil
	}
	return d.email.Notify(ctx, post)
}

func (d *Dispatcher) NotifyEvent(ctx context.Context, event string, post content.Post) {
	if d.webhook == nil {
		return
	}
	if err := d.webhook.Notify(ctx, event, post); err != nil {
		d.logger.WithError(err).WithFields(logging.Fields{
			"event":   event,
			"post_id": post.ID,
		}).Warn("Webhook notification failed")
	}
}
