package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

// WebhookNotifier posta um payload compatível com incoming webhooks do Slack
// ({"text": "..."}).
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a domain.Alert) error {
	body, err := json.Marshal(map[string]string{"text": FormatAlert(a)})
	if err != nil {
		return n.wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return n.wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return n.wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return n.wrap(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

func (n *WebhookNotifier) wrap(err error) error {
	return &domain.NotificationError{Notifier: "webhook", Err: err}
}

// FormatAlert monta o texto do alerta.
func FormatAlert(a domain.Alert) string {
	var b strings.Builder
	b.WriteString("route-limiter: excess rate limit warning\n\n")
	fmt.Fprintf(&b, "ip: %s\n", a.Client)
	fmt.Fprintf(&b, "route: %s\n", a.Route)
	fmt.Fprintf(&b, "policy: %s (seen %d)\n", a.Policy, a.Count)
	if a.Location.Country != "" {
		fmt.Fprintf(&b, "country: %s\n", a.Location.Country)
	}
	if a.Location.City != "" {
		fmt.Fprintf(&b, "city: %s\n", a.Location.City)
	}
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", a.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}
