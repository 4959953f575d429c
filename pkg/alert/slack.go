package alert

import (
	"context"
	"fmt"
	"net/http"
)

// Slack posts a Block Kit run summary to an incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{client: chatClient, webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	emoji, _ := style(n.Status)
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": emoji + " " + n.Title()},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Run*\n`%s`", n.RunID)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Window*\n%s", n.window())},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Scored*\n%s", n.Summary())},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Took*\n%s", n.Duration)},
			},
		},
	}
	if details := n.Details(5); details != "" {
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": []map[string]any{{"type": "mrkdwn", "text": details}},
		})
	}
	return postJSON(ctx, s.client, "slack", s.webhookURL, map[string]any{"blocks": blocks})
}
