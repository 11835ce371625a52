package chatwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookNotifier posts alerts as JSON to a URL. The payload carries a
// "content" field so chat webhooks that expect one accept it as is.
type WebhookNotifier struct {
	url    string
	client *LimitedHTTPClient
}

type webhookPayload struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

func NewWebhookNotifier(url string, client *LimitedHTTPClient) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: client}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) RequestPermission(context.Context) error {
	if w.url == "" {
		return ErrPermissionDenied
	}
	return nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, title, body string) error {
	b, err := json.Marshal(webhookPayload{
		Content: fmt.Sprintf("**%s**\n%s", title, body),
		Title:   title,
		Body:    body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
