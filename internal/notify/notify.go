package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"
	"homeguard/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Message is one rendered announcement for one channel.
// Params: source record, destination channel and rendered text.
// Returns: template data and HTTP webhook payload.
type Message struct {
	domain.NotificationRecord
	Channel string `json:"channel"`
	Text    string `json:"message"`
}

// SendResult returns channel-specific metadata after successful delivery.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one rendered announcement to one channel.
// Params: context and rendered message.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, message Message) (SendResult, error)
}

// Dispatcher renders records per channel and delivers them with retries.
// Params: sender list, templates and retry policy.
// Returns: delivery helper used by Announcer.
type Dispatcher struct {
	senders   map[string]ChannelSender
	channels  []string
	retries   map[string]config.AnnounceRetry
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewDispatcher builds dispatcher from enabled announce channels.
// Params: announce config and logger.
// Returns: configured dispatcher or template parse error.
func NewDispatcher(cfg config.AnnounceConfig, logger *slog.Logger) (*Dispatcher, error) {
	dispatcher := &Dispatcher{
		senders:   make(map[string]ChannelSender),
		retries:   make(map[string]config.AnnounceRetry),
		templates: make(map[string]*template.Template),
		logger:    logger,
	}
	if cfg.Telegram.Enabled {
		if err := dispatcher.register(NewTelegramSender(cfg.Telegram), cfg.Telegram.Template, cfg.Telegram.Retry); err != nil {
			return nil, err
		}
	}
	if cfg.HTTP.Enabled {
		if err := dispatcher.register(NewHTTPSender(cfg.HTTP), cfg.HTTP.Template, cfg.HTTP.Retry); err != nil {
			return nil, err
		}
	}
	return dispatcher, nil
}

// register binds sender with its template and retry policy.
func (d *Dispatcher) register(sender ChannelSender, body string, retry config.AnnounceRetry) error {
	channel := sender.Channel()
	compiled, err := templatefmt.ParseAnnouncementTemplate("announce."+channel+".template", body)
	if err != nil {
		return fmt.Errorf("parse announce.%s.template: %w", channel, err)
	}
	d.senders[channel] = sender
	d.retries[channel] = retry
	d.templates[channel] = compiled
	d.channels = append(d.channels, channel)
	sort.Strings(d.channels)
	return nil
}

// Channels returns configured channel list.
// Params: none.
// Returns: deterministic sender keys.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// Deliver sends one record to every configured channel.
// Params: context and announced record.
// Returns: joined per-channel errors.
func (d *Dispatcher) Deliver(ctx context.Context, record domain.NotificationRecord) error {
	var errs []error
	for _, channel := range d.channels {
		if _, err := d.Send(ctx, channel, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send renders record for channel and delivers it with retry policy.
// Params: destination channel and record.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel string, record domain.NotificationRecord) (SendResult, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, fmt.Errorf("announce channel %q is not configured", channel)
	}
	message := Message{NotificationRecord: record, Channel: channel}
	text, err := render(d.templates[channel], message)
	if err != nil {
		return SendResult{}, MarkPermanent(fmt.Errorf("render announce template for channel %q: %w", channel, err))
	}
	message.Text = text
	return d.sendWithRetry(ctx, sender, message, d.retries[channel])
}

// sendWithRetry sends one message with channel-specific retry policy.
// Params: sender, message and retry policy.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, message Message, retry config.AnnounceRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, message)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer stopTimer(timer)

	for {
		attempt++
		result, err := sender.Send(ctx, message)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 && d.logger != nil {
				d.logger.Info("announce send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt && d.logger != nil {
			d.logger.Warn("announce send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}
		if IsPermanent(err) {
			return SendResult{}, fmt.Errorf("channel %s rejected message: %w", sender.Channel(), err)
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

func render(body *template.Template, message Message) (string, error) {
	if body == nil {
		return message.Title, nil
	}
	var rendered strings.Builder
	if err := body.Execute(&rendered, message); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// TelegramSender sends announcements to Telegram Bot API.
// Params: bot token, chat id, and base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates Telegram sender.
// Params: Telegram announce config.
// Returns: sender; configuration problems surface on Send as permanent errors.
func NewTelegramSender(cfg config.TelegramAnnounce) *TelegramSender {
	sender := &TelegramSender{chatID: normalizeChatID(cfg.ChatID)}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("telegram chat_id is required")
		return sender
	}

	botClient, err := tgbot.New(cfg.BotToken,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
func (s *TelegramSender) Channel() string {
	return config.AnnounceChannelTelegram
}

// Send posts one message to Telegram chat. Remote images are sent as photo captions.
// Params: context and rendered message.
// Returns: Telegram message id or transport error.
func (s *TelegramSender) Send(ctx context.Context, message Message) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, MarkPermanent(s.initErr)
	}
	if s.client == nil {
		return SendResult{}, MarkPermanent(errors.New("telegram client is not initialized"))
	}

	if message.Image != nil && !message.Image.Inline() {
		sent, err := s.client.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID:    s.chatID,
			Photo:     &tgmodels.InputFileString{Data: message.Image.Ref},
			Caption:   message.Text,
			ParseMode: tgmodels.ParseModeHTML,
		})
		if err != nil {
			return SendResult{}, fmt.Errorf("telegram send photo: %w", err)
		}
		return telegramResult(sent)
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      message.Text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	return telegramResult(sent)
}

func telegramResult(sent *tgmodels.Message) (SendResult, error) {
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps channel usernames as string.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// HTTPSender posts announcement JSON to configured webhook.
// Params: endpoint URL, method, timeout, and headers.
// Returns: generic HTTP sender.
type HTTPSender struct {
	cfg    config.HTTPAnnounce
	client *http.Client
}

// NewHTTPSender creates generic HTTP sender.
// Params: HTTP announce config.
// Returns: initialized sender.
func NewHTTPSender(cfg config.HTTPAnnounce) *HTTPSender {
	return &HTTPSender{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Channel returns sender channel name.
func (s *HTTPSender) Channel() string {
	return config.AnnounceChannelHTTP
}

// Send delivers JSON payload to configured endpoint.
// Params: context and rendered message.
// Returns: transport error; client-side 4xx responses are permanent.
func (s *HTTPSender) Send(ctx context.Context, message Message) (SendResult, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return SendResult{}, MarkPermanent(fmt.Errorf("encode http announce payload: %w", err))
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, MarkPermanent(fmt.Errorf("build http announce request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("http announce send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return SendResult{}, nil
	}
	statusErr := unexpectedHTTPStatusError("http announce", response)
	if retryableStatus(response.StatusCode) {
		return SendResult{}, statusErr
	}
	return SendResult{}, MarkPermanent(statusErr)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}
