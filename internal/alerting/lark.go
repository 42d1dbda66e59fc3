package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LarkNotifier 通过飞书自定义机器人 webhook 推送消息。
type LarkNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewLarkNotifier 构造飞书告警器。
func NewLarkNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *LarkNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LarkNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_lark").Logger(),
	}
}

// NotifySpread implements Notifier.
func (n *LarkNotifier) NotifySpread(ctx context.Context, alert SpreadAlert) error {
	if err := n.send(ctx, renderSpread(alert)); err != nil {
		return err
	}
	n.logger.Info().
		Str("symbol", alert.Symbol).
		Str("buy", alert.BuyExchange).
		Str("sell", alert.SellExchange).
		Msg("告警已发送 (Lark)")
	return nil
}

// NotifyBroadcast implements Notifier.
func (n *LarkNotifier) NotifyBroadcast(ctx context.Context, broadcast Broadcast) error {
	if err := n.send(ctx, renderBroadcast(broadcast)); err != nil {
		return err
	}
	n.logger.Info().Int("symbols", len(broadcast.Books)).Msg("定期播报已发送 (Lark)")
	return nil
}

// NotifyExecution implements Notifier.
func (n *LarkNotifier) NotifyExecution(ctx context.Context, alert ExecutionAlert) error {
	if err := n.send(ctx, renderExecution(alert)); err != nil {
		return err
	}
	n.logger.Info().
		Str("attempt_id", alert.AttemptID).
		Str("severity", alert.Severity).
		Msg("执行回报已发送 (Lark)")
	return nil
}

type larkTextMessage struct {
	MsgType string `json:"msg_type"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (n *LarkNotifier) send(ctx context.Context, text string) error {
	message := larkTextMessage{MsgType: "text"}
	message.Content.Text = text

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal lark payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create lark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send lark request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lark 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if result.Code != 0 {
			return fmt.Errorf("lark 返回 code=%d msg=%s", result.Code, result.Msg)
		}
	}
	return nil
}

var _ Notifier = (*LarkNotifier)(nil)
