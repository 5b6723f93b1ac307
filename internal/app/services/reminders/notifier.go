package reminders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Notifier delivers a due reminder to its owner.
type Notifier interface {
	Notify(ctx context.Context, r reminder.Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r reminder.Reminder) error

func (f NotifierFunc) Notify(ctx context.Context, r reminder.Reminder) error { return f(ctx, r) }

// LogNotifier writes deliveries to the log. It is the default when no
// webhook is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("reminder-notifier")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, r reminder.Reminder) error {
	n.log.WithField("reminder_id", r.ID).
		WithField("user_id", r.UserID).
		WithField("via", r.Via).
		WithField("title", r.Title).
		Info("reminder delivered")
	return nil
}

// ChannelNotifier routes reminders by delivery channel. Reminders on a channel
// without a route, or whose route has no listener, go to the fallback.
type ChannelNotifier struct {
	routes   map[reminder.Channel]Notifier
	fallback Notifier
}

func NewChannelNotifier(fallback Notifier) *ChannelNotifier {
	return &ChannelNotifier{routes: make(map[reminder.Channel]Notifier), fallback: fallback}
}

// Route sends reminders on ch to n.
func (c *ChannelNotifier) Route(ch reminder.Channel, n Notifier) *ChannelNotifier {
	c.routes[ch] = n
	return c
}

func (c *ChannelNotifier) Notify(ctx context.Context, r reminder.Reminder) error {
	if n, ok := c.routes[r.Via]; ok {
		err := n.Notify(ctx, r)
		if !errors.Is(err, ErrNoListener) {
			return err
		}
	}
	return c.fallback.Notify(ctx, r)
}

// WebhookNotifier POSTs each due reminder as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewWebhookNotifier constructs a notifier posting to endpoint.
func NewWebhookNotifier(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*WebhookNotifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse webhook endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("webhook endpoint must be http or https")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("reminder-webhook")
	}
	return &WebhookNotifier{client: client, endpoint: parsed, apiKey: strings.TrimSpace(apiKey), log: log}, nil
}

// reminderMessage is the JSON body sent to webhooks and in-app connections.
type reminderMessage struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ReminderType string    `json:"reminderType"`
	Via          string    `json:"via"`
	Priority     string    `json:"priority"`
	SentAt       time.Time `json:"sentAt"`
}

func newReminderMessage(r reminder.Reminder) reminderMessage {
	return reminderMessage{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		ReminderType: r.ReminderType,
		Via:          string(r.Via),
		Priority:     string(r.Priority),
		SentAt:       r.SentAt,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, r reminder.Reminder) error {
	body, err := json.Marshal(newReminderMessage(r))
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	n.log.WithField("reminder_id", r.ID).WithField("status", resp.StatusCode).Debug("reminder posted to webhook")
	return nil
}
