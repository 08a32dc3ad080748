package alert

import (
	"context"
	"fmt"
	"time"

	gridhttp "gridbot/pkg/http"
)

// WebhookChannel posts alerts as a JSON body with a single "content"
// field, the shape used by Discord-style incoming webhooks. It carries
// separate URLs for info and error/critical alerts, mirroring the
// original two-webhook (info/error) Discord notifier this system was
// built from.
type WebhookChannel struct {
	infoClient  *gridhttp.Client
	errorClient *gridhttp.Client
}

// NewWebhookChannel builds a channel posting info-level alerts to
// infoURL and everything else to errURL. Either URL may be empty, in
// which case posts of that severity are silently dropped.
func NewWebhookChannel(infoURL, errURL string) *WebhookChannel {
	ch := &WebhookChannel{}
	if infoURL != "" {
		ch.infoClient = gridhttp.NewClient(infoURL, 5*time.Second, nil)
	}
	if errURL != "" {
		ch.errorClient = gridhttp.NewClient(errURL, 5*time.Second, nil)
	}
	return ch
}

func (w *WebhookChannel) Name() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, alert AlertPayload) error {
	client := w.infoClient
	if alert.Level != Info {
		client = w.errorClient
	}
	if client == nil {
		return nil
	}

	content := fmt.Sprintf("[%s] %s\n%s", alert.Level, alert.Title, alert.Message)
	_, err := client.Post(ctx, "", map[string]string{"content": content})
	return err
}
