// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/wake"
	"github.com/rs/zerolog"
)

// Phases that produce a notification. Everything else is too chatty.
const (
	PhaseWakeSent       = "wake_sent"
	PhaseConfirmedAwake = "confirmed_awake"
	PhaseUnreachable    = "unreachable"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification sends a wake cycle notification via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("phase", msg.Phase).
		Str("target", msg.Target).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      formatMessage(msg),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func formatMessage(msg models.TelegramMessage) string {
	var b bytes.Buffer

	switch msg.Phase {
	case PhaseWakeSent:
		if msg.Status == wake.StatusSendFailed {
			b.WriteString("⚠️ <b>Wake packet failed</b>\n\n")
		} else {
			b.WriteString("📡 <b>Wake packet sent</b>\n\n")
		}
	case PhaseConfirmedAwake:
		b.WriteString("✅ <b>Host is awake</b>\n\n")
	case PhaseUnreachable:
		b.WriteString("❌ <b>Host unreachable</b>\n\n")
	default:
		b.WriteString(fmt.Sprintf("ℹ️ <b>%s</b>\n\n", escapeHTML(msg.Phase)))
	}

	b.WriteString(fmt.Sprintf("🎯 <b>Target:</b> <code>%s</code>\n", escapeHTML(msg.Target)))
	if msg.Status != "" {
		b.WriteString(fmt.Sprintf("📋 <b>Status:</b> %s\n", escapeHTML(msg.Status)))
	}
	if msg.Host != "" {
		b.WriteString(fmt.Sprintf("🖥 <b>Reported by:</b> %s\n", escapeHTML(msg.Host)))
	}
	b.WriteString(fmt.Sprintf("🔁 <b>Cycle:</b> %d\n", msg.Cycle))
	b.WriteString(fmt.Sprintf("⏰ <b>Time:</b> %s\n", msg.Time.Format("2006-01-02 15:04:05")))

	return b.String()
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Notifier forwards wake cycle status changes to a Telegram chat.
type Notifier struct {
	svc  Service
	cfg  models.TelegramConfig
	host string
}

// NewNotifier creates a notifier reporting as host.
func NewNotifier(svc Service, cfg models.TelegramConfig, host string) *Notifier {
	return &Notifier{svc: svc, cfg: cfg, host: host}
}

// Notify sends a message for the indicator phases and ignores the rest.
func (n *Notifier) Notify(ctx context.Context, ev models.StatusEvent) error {
	switch ev.Phase {
	case PhaseWakeSent, PhaseConfirmedAwake, PhaseUnreachable:
	default:
		return nil
	}

	result, err := n.svc.SendNotification(ctx, n.cfg, models.TelegramMessage{
		Host:   n.host,
		Phase:  ev.Phase,
		Status: ev.Status,
		Target: ev.Target,
		Cycle:  ev.Cycle,
		Time:   ev.Time,
	})
	if err != nil {
		return err
	}
	return result.Error
}
