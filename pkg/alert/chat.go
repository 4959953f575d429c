package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/elonfeng/sentiradar/internal/store"
)

var chatClient = &http.Client{Timeout: 10 * time.Second}

// postJSON sends payload to a chat webhook and expects a 2xx reply.
func postJSON(ctx context.Context, client *http.Client, dest, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", dest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", dest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s webhook: %w", dest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s webhook status %d", dest, resp.StatusCode)
	}
	return nil
}

// style picks the Slack emoji and Discord embed colour for a run status.
func style(status store.RunStatus) (emoji string, color int) {
	switch status {
	case store.RunFailed:
		return ":x:", 0xE74C3C
	case store.RunCompletedWithWarnings:
		return ":warning:", 0xF1C40F
	}
	return ":white_check_mark:", 0x2ECC71
}
