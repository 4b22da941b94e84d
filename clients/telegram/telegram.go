package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"predictor/clients/notifier"
	"predictor/config"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramClient sends digests to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	isProd   bool
	apiBase  string
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram digests disabled")
		return &TelegramClient{
			logger:  logger,
			chatID:  chatID,
			isProd:  cfg.IsProd,
			apiBase: defaultAPIBase,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		isProd:   cfg.IsProd,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendDigest sends a picks digest notification.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendDigest(digest notifier.PicksDigest) {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping digest")
		return
	}

	message := buildDigestMessage(digest)

	if err := tc.sendMessage(message); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram digest",
		zap.String("title", digest.Title),
		zap.Int("picks", len(digest.Picks)),
	)
}

func buildDigestMessage(digest notifier.PicksDigest) string {
	var sb strings.Builder

	title := digest.Title
	if title == "" {
		title = "🔥 Trending Picks"
	}
	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(title)))

	if len(digest.Picks) == 0 {
		sb.WriteString("No high confidence picks right now.\n")
	}

	for i, p := range digest.Picks {
		emoji := "🟢"
		if p.Side() == "UNDER" {
			emoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%d. %s *%s* (%s)\n", i+1, emoji,
			escapeMarkdown(p.PlayerName), strings.ToUpper(p.Sport)))
		sb.WriteString(fmt.Sprintf("   %s %.1f %s @ %.0f%%, projected %.1f\n",
			p.Side(), p.Line, escapeMarkdown(strings.ReplaceAll(p.StatType, "_", " ")),
			p.SideProbability()*100, p.PredictedValue))
		if p.Opponent != "" {
			sb.WriteString(fmt.Sprintf("   %s vs %s, %s\n",
				escapeMarkdown(p.Team), escapeMarkdown(p.Opponent), p.GameDate))
		} else {
			sb.WriteString(fmt.Sprintf("   %s, %s\n", escapeMarkdown(p.Team), p.GameDate))
		}
	}

	if digest.DashboardURL != "" {
		sb.WriteString(fmt.Sprintf("\n[Open dashboard](%s)\n", digest.DashboardURL))
	}

	// Timestamp
	ts := digest.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_%s_", ts.UTC().Format("Jan 2, 2006 15:04 UTC")))

	return sb.String()
}

func (tc *TelegramClient) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/%s", tc.apiBase, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":                  tc.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
