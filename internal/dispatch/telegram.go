package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramSender 通过 Telegram Bot API 推送消息。
type TelegramSender struct {
	botToken      string
	defaultChatID string
	baseURL       string
	client        *http.Client
	logger        zerolog.Logger
}

// NewTelegramSender 构造 Telegram 推送通道。
func NewTelegramSender(botToken, defaultChatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSender{
		botToken:      botToken,
		defaultChatID: defaultChatID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "sender_telegram").Logger(),
	}
}

// Send 调用 sendMessage API 推送文本。recipientID 作为 chat_id 使用，
// 为空时退回默认会话。
func (s *TelegramSender) Send(ctx context.Context, recipientID, title, body string, metadata map[string]string) error {
	chatID := recipientID
	if chatID == "" {
		chatID = s.defaultChatID
	}

	payload := map[string]string{
		"chat_id": chatID,
		"text":    title + "\n" + body,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	s.logger.Info().
		Str("chat_id", chatID).
		Str("event_id", metadata["event_id"]).
		Msg("告警已发送 (Telegram)")
	return nil
}

var _ Sender = (*TelegramSender)(nil)

// LogSender writes notifications to the log only. Used by simulate and
// development setups with no delivery channel configured.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "sender_log").Logger()}
}

// Send logs the rendered notification and always succeeds.
func (s *LogSender) Send(ctx context.Context, recipientID, title, body string, metadata map[string]string) error {
	s.logger.Info().
		Str("recipient", recipientID).
		Str("title", title).
		Str("body", body).
		Msg("notification (log only)")
	return nil
}

var _ Sender = (*LogSender)(nil)
