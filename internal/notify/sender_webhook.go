package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// slackPayload is a Slack incoming-webhook body. Slack's incoming-webhook
// contract just wants {"text": "..."} with no shared secret to sign, so
// there is no HMAC step here — unlike a generic webhook receiver, there's
// nothing to sign against.
type slackPayload struct {
	Text string `json:"text"`
}

type webhookSender struct {
	client *http.Client
	url    string
}

func newWebhookSender(url string) *webhookSender {
	return &webhookSender{client: &http.Client{Timeout: 10 * time.Second}, url: url}
}

// Send posts text to the configured Slack incoming webhook. A disabled
// (empty URL) sender is a silent no-op, matching the original's
// ErrConfigNotFound-is-not-fatal behavior.
func (s *webhookSender) Send(ctx context.Context, text string) error {
	if s.url == "" {
		return nil
	}

	data, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("%w: marshal slack payload: %s", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: build webhook request: %s", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook request failed: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned non-2xx status %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}
