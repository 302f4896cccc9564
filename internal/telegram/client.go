// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats comfort alerts and sync connectivity notices into MarkdownV2 messages and
// handles delivery with retry logic for reliability.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/comfortdash/internal/dashboard"
	"github.com/rewired-gh/comfortdash/internal/models"
)

// bot is the subset of tgbotapi.BotAPI the client needs.
type bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            bot
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	location       *time.Location
	now            func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(api, chatID, maxRetries, retryDelayBase)
}

func newClient(b bot, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            b,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		location:       time.Local,
		now:            time.Now,
	}, nil
}

// SetLocation sets the time zone used for timestamps in messages.
func (c *Client) SetLocation(loc *time.Location) {
	if loc != nil {
		c.location = loc
	}
}

// SendTierAlert notifies that the room escalated into an alerting comfort tier.
func (c *Client) SendTierAlert(ov dashboard.Overview) error {
	return c.send(c.formatTierAlert(ov))
}

// SendDegraded notifies that the readings collaborator stopped answering.
func (c *Client) SendDegraded(state models.SyncState) error {
	return c.send(c.formatDegraded(state))
}

// SendRecovery notifies that fetching works again after failures.
func (c *Client) SendRecovery(failures int) error {
	return c.send(formatRecovery(failures))
}

// send delivers text with retry
func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i+1 < c.maxRetries {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) formatTierAlert(ov dashboard.Overview) string {
	cls := ov.Classification

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", cls.Emoji, escapeMarkdownV2(cls.Label))
	fmt.Fprintf(&b, "_%s_\n\n", escapeMarkdownV2(cls.Title))

	fmt.Fprintf(&b, "🌡 Index: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.1f", ov.Index)))
	if ov.Reading != nil {
		fmt.Fprintf(&b, "   Temperature: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f°C", ov.Reading.Temperature)))
		fmt.Fprintf(&b, "   Humidity: %s\n", escapeMarkdownV2(fmt.Sprintf("%.0f%%", ov.Reading.Humidity)))
		fmt.Fprintf(&b, "📅 Measured: %s\n", escapeMarkdownV2(ov.Reading.Timestamp.In(c.location).Format("2006-01-02 15:04:05")))
	}
	if ov.Forecast != nil {
		fmt.Fprintf(&b, "🔮 Forecast: %s \\(%s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%.1f", ov.Forecast.Index)),
			escapeMarkdownV2(ov.Forecast.Classification.Label))
	}

	fmt.Fprintf(&b, "\n%s", escapeMarkdownV2(cls.Advisory))
	return b.String()
}

func (c *Client) formatDegraded(state models.SyncState) string {
	var b strings.Builder
	b.WriteString("⚠️ *Readings source unavailable*\n\n")
	if state.LastError != "" {
		fmt.Fprintf(&b, "Error: `%s`\n", escapeCode(state.LastError))
	}
	if state.HasData() {
		fmt.Fprintf(&b, "Last good data: %s \\(%s ago\\)\n",
			escapeMarkdownV2(state.LastSuccessfulFetchAt.In(c.location).Format("2006-01-02 15:04:05")),
			escapeMarkdownV2(formatDuration(state.Staleness(c.now()))))
	} else {
		b.WriteString("No data received yet\\.\n")
	}
	b.WriteString("\nThe dashboard keeps showing the last known readings\\.")
	return b.String()
}

func formatRecovery(failures int) string {
	noun := "failures"
	if failures == 1 {
		noun = "failure"
	}
	return fmt.Sprintf("✅ *Readings source recovered*\n\nLive data resumed after %d consecutive %s\\.", failures, noun)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside a MarkdownV2 code span.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	if mins := int(d.Minutes()); mins >= 1 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
