package alerting

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

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// NotifySpread implements Notifier.
func (n *TelegramNotifier) NotifySpread(ctx context.Context, alert SpreadAlert) error {
	if err := n.send(ctx, renderSpread(alert)); err != nil {
		return err
	}
	n.logger.Info().
		Str("symbol", alert.Symbol).
		Str("buy", alert.BuyExchange).
		Str("sell", alert.SellExchange).
		Msg("告警已发送 (Telegram)")
	return nil
}

// NotifyBroadcast implements Notifier.
func (n *TelegramNotifier) NotifyBroadcast(ctx context.Context, broadcast Broadcast) error {
	if err := n.send(ctx, renderBroadcast(broadcast)); err != nil {
		return err
	}
	n.logger.Info().Int("symbols", len(broadcast.Books)).Msg("定期播报已发送 (Telegram)")
	return nil
}

// NotifyExecution implements Notifier.
func (n *TelegramNotifier) NotifyExecution(ctx context.Context, alert ExecutionAlert) error {
	if err := n.send(ctx, renderExecution(alert)); err != nil {
		return err
	}
	n.logger.Info().
		Str("attempt_id", alert.AttemptID).
		Str("severity", alert.Severity).
		Msg("执行回报已发送 (Telegram)")
	return nil
}

// send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
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
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
