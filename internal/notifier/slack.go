package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/roster"
)

// EventType identifies the kind of change posted to Slack.
type EventType string

const (
	EventPseudonymAdded   EventType = "pseudonym_added"
	EventPseudonymRemoved EventType = "pseudonym_removed"
	EventImageUpdated     EventType = "image_updated"
)

// Field keys used in notification payloads.
const (
	FieldPseudonym = "pseudonym"
	FieldCategory  = "category"
	FieldActor     = "actor"
	FieldRequest   = "request"
	FieldPath      = "path"
)

type eventConfig struct {
	emoji string
	title string
}

var eventConfigs = map[EventType]eventConfig{
	EventPseudonymAdded:   {emoji: "➕", title: "Pseudonym Added"},
	EventPseudonymRemoved: {emoji: "➖", title: "Pseudonym Removed"},
	EventImageUpdated:     {emoji: "🖼️", title: "World Image Updated"},
}

// Slack posts changes to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	notifyOn   config.SlackNotifySettings
	now        func() time.Time
}

// NewSlack creates a Slack notifier. It is disabled when cfg is nil, not
// enabled or has no webhook.
func NewSlack(cfg *config.SlackConfig) *Slack {
	if cfg == nil || !cfg.Enabled || cfg.WebhookURL == "" {
		return &Slack{enabled: false}
	}

	return &Slack{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    true,
		notifyOn:   cfg.NotifyOn,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

// Enabled reports whether posts are sent at all.
func (s *Slack) Enabled() bool {
	return s.enabled
}

type slackMessage struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text,omitempty"`
	Blocks  []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Slack) RosterUpdate(ctx context.Context, change Change) error {
	event := EventPseudonymAdded
	if change.Op == roster.OpRemove {
		event = EventPseudonymRemoved
	}

	fields := map[string]string{
		FieldPseudonym: change.Pseudonym,
		FieldCategory:  change.Category.String(),
		FieldActor:     change.Actor,
	}
	if change.RequestID != uuid.Nil {
		fields[FieldRequest] = change.RequestID.String()
	}
	return s.Post(ctx, event, fields)
}

func (s *Slack) ImageUpdate(ctx context.Context, path string) error {
	return s.Post(ctx, EventImageUpdated, map[string]string{FieldPath: path})
}

// Post sends one event. Disabled clients and filtered events return nil.
func (s *Slack) Post(ctx context.Context, event EventType, fields map[string]string) error {
	if !s.enabled {
		return nil
	}

	if !s.shouldNotify(event) {
		return nil
	}

	msg := s.formatMessage(event, fields)
	if s.channel != "" {
		msg.Channel = s.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *Slack) shouldNotify(event EventType) bool {
	switch event {
	case EventPseudonymAdded, EventPseudonymRemoved:
		return s.notifyOn.Roster
	case EventImageUpdated:
		return s.notifyOn.Image
	default:
		return true
	}
}

func (s *Slack) formatMessage(event EventType, fields map[string]string) *slackMessage {
	cfg, ok := eventConfigs[event]
	if !ok {
		cfg = eventConfig{emoji: "📢", title: string(event)}
	}

	header := fmt.Sprintf("%s *%s*", cfg.emoji, cfg.title)

	var fieldBlocks []slackText
	switch event {
	case EventPseudonymAdded, EventPseudonymRemoved:
		fieldBlocks = formatRosterFields(fields)
	case EventImageUpdated:
		if v := fields[FieldPath]; v != "" {
			fieldBlocks = append(fieldBlocks, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*File:*\n`%s`", v)})
		}
	}

	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: header},
		},
	}

	if len(fieldBlocks) > 0 {
		blocks = append(blocks, slackBlock{
			Type:   "section",
			Fields: fieldBlocks,
		})
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Fields: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("_wperm • %s_", s.now().Format("Jan 2, 15:04 MST"))},
		},
	})

	return &slackMessage{
		Text:   fallbackText(cfg, fields),
		Blocks: blocks,
	}
}

func formatRosterFields(fields map[string]string) []slackText {
	var result []slackText
	if v := fields[FieldPseudonym]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Pseudonym:*\n`%s`", truncate(v, 64))})
	}
	if v := fields[FieldCategory]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Category:*\n%s", v)})
	}
	if v := fields[FieldActor]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*By:*\n%s", v)})
	}
	if v := fields[FieldRequest]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Request:*\n`%s`", truncate(v, 11))})
	}
	return result
}

func fallbackText(cfg eventConfig, fields map[string]string) string {
	p, c := fields[FieldPseudonym], fields[FieldCategory]
	if p == "" || c == "" {
		return fmt.Sprintf("%s %s", cfg.emoji, cfg.title)
	}
	return fmt.Sprintf("%s %s: %s (%s)", cfg.emoji, cfg.title, p, c)
}

// truncate shortens s to maxLen bytes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
