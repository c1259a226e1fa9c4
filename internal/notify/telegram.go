package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"partner-bot/internal/metrics"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// TelegramConfig holds Telegram client configuration.
type TelegramConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewTelegram creates a new Telegram notifier.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger, metricRegistry *metrics.Metrics) *Telegram {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultTelegramBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Telegram{
		logger:  logger.With("component", "telegram"),
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

// sendMessageResponse mirrors the Bot API response envelope.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// Notify sends a plain-text message to the given chat.
func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		t.metrics.Notifications.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		t.metrics.Notifications.WithLabelValues("read_error").Inc()
		return fmt.Errorf("read telegram response: %w", err)
	}

	var envelope sendMessageResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.metrics.Notifications.WithLabelValues("decode_error").Inc()
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !envelope.OK {
		t.metrics.Notifications.WithLabelValues("rejected").Inc()
		return fmt.Errorf("telegram rejected message: %d %s", envelope.ErrorCode, envelope.Description)
	}

	t.metrics.Notifications.WithLabelValues("sent").Inc()
	t.logger.Debug("notification sent", "chat_id", chatID)
	return nil
}
