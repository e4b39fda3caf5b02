// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/bizalert/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	report         func() (string, error)
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetReportFunc installs the handler for the /report command.
func (c *Client) SetReportFunc(fn func() (string, error)) {
	c.report = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "report":
		if c.report == nil {
			return
		}
		text, err := c.report()
		if err != nil {
			text = "Report unavailable: " + err.Error()
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, text)
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

func (c *Client) Name() string {
	return "telegram"
}

// Notify sends the alert digest, split into as many messages as needed to
// stay under Telegram's length limit.
func (c *Client) Notify(ctx context.Context, alerts []models.Alert) error {
	parts := formatMessages(alerts)
	for i, text := range parts {
		if err := c.sendMarkdownV2(ctx, text); err != nil {
			return fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

const (
	// maxMessageLen is Telegram's limit in UTF-16 code units.
	maxMessageLen = 4096
	// maxAlertRunes caps one alert's text before escaping, which at most
	// doubles it, so a single line always fits in a message.
	maxAlertRunes = 1500
)

var severityEmoji = map[models.Severity]string{
	models.SeverityCritical: "🔴",
	models.SeverityHigh:     "🟠",
	models.SeverityMedium:   "🟡",
	models.SeverityLow:      "🔵",
}

// formatMessages formats alerts into Telegram MarkdownV2 digests, most severe
// first. Only the first message carries the header; numbering continues
// across messages.
func formatMessages(alerts []models.Alert) []string {
	sorted := make([]models.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	var b strings.Builder
	b.WriteString("🚨 *Sales Alerts*\n\n")
	if len(sorted) > 0 {
		dateStr := escapeMarkdownV2(sorted[0].Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Detected: %s\n\n", dateStr)
	}
	size := textLen(b.String())

	var parts []string
	for i, alert := range sorted {
		line := fmt.Sprintf("%d\\. %s *%s* %s\n",
			i+1,
			severityEmoji[alert.Severity],
			escapeMarkdownV2(strings.ToUpper(string(alert.Severity))),
			escapeMarkdownV2(truncate(alert.Message, maxAlertRunes)),
		)
		n := textLen(line)
		if size+n > maxMessageLen && b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
			size = 0
		}
		b.WriteString(line)
		size += n
	}
	return append(parts, b.String())
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// textLen counts UTF-16 code units, the unit Telegram measures messages in.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
