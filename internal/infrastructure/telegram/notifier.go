// Package telegram publishes run summaries to a Telegram chat via bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// Notifier sends non-success run outcomes to a Telegram chat.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishRunSummary posts a short outcome message to Telegram.
func (n *Notifier) PublishRunSummary(ctx context.Context, record domain.RunRecord) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatSummary(record))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatSummary(record domain.RunRecord) string {
	summary := fmt.Sprintf("review ingestion %s for %s: fetched %d, new %d, duplicate %d, failed %d",
		record.Outcome, record.BusinessID,
		record.Fetched, record.New, record.Duplicate, record.Failed)
	if record.Error != "" {
		summary += "\n" + record.Error
	}
	return summary
}
