package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"
)

// Telegram delivers signals through the Telegram Bot API.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	log      *logger.Logger
}

// NewTelegram creates a Telegram channel.
// botToken comes from @BotFather; chatID targets a chat, group or channel.
func NewTelegram(botToken, chatID string, log *logger.Logger) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (t *Telegram) ID() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, sig *models.Signal) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       formatMessage(sig),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	t.log.Debug("telegram message sent",
		logger.String("pair", sig.Pair),
		logger.String("signal_id", sig.ID.String()))
	return nil
}

func formatMessage(sig *models.Signal) string {
	var b strings.Builder
	emoji := "📊"
	if sig.Priority >= models.PriorityUrgent {
		emoji = "🚨"
	}
	fmt.Fprintf(&b, "%s *%s %s*\n", emoji, escapeMarkdown(sig.Pair), escapeMarkdown(string(sig.Timeframe)))
	for name, v := range sig.Values {
		fmt.Fprintf(&b, "%s: %s\n", escapeMarkdown(name), escapeMarkdown(fmt.Sprintf("%.4f", v)))
	}
	fmt.Fprintf(&b, "_%s_", escapeMarkdown(sig.ComputedAt.Format(time.RFC3339)))
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
