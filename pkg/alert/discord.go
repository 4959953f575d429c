package alert

import (
	"context"
	"net/http"
	"time"
)

// Discord posts a single-embed run summary to a Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: chatClient, webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	_, color := style(n.Status)
	fields := []map[string]any{
		{"name": "Run", "value": "`" + n.RunID + "`", "inline": true},
		{"name": "Window", "value": n.window(), "inline": true},
		{"name": "Took", "value": n.Duration, "inline": true},
	}
	embed := map[string]any{
		"title":       n.Title(),
		"description": n.Summary(),
		"color":       color,
		"fields":      fields,
		"timestamp":   n.SentAt.Format(time.RFC3339),
	}
	if details := n.Details(5); details != "" {
		embed["footer"] = map[string]any{"text": details}
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]any{"embeds": []map[string]any{embed}})
}
