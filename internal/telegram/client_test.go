package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/comfortdash/internal/comfort"
	"github.com/rewired-gh/comfortdash/internal/dashboard"
	"github.com/rewired-gh/comfortdash/internal/models"
)

type fakeBot struct {
	failures int
	calls    int
	last     tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.last = msg
	}
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("too many requests")
	}
	return tgbotapi.Message{}, nil
}

func testClient(t *testing.T, b bot, retries int) *Client {
	t.Helper()
	c, err := newClient(b, "12345", retries, time.Millisecond)
	if err != nil {
		t.Fatalf("newClient failed: %v", err)
	}
	c.SetLocation(time.UTC)
	return c
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h"},
		{2 * time.Hour, "2h"},
		{30 * time.Minute, "30m"},
		{1 * time.Minute, "1m"},
		{45 * time.Second, "45s"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", tt.duration, result, tt.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"26.5", "26\\.5"},
		{"Heat warning!", "Heat warning\\!"},
		{"a_b*c", "a\\_b\\*c"},
		{"(2024-01-01)", "\\(2024\\-01\\-01\\)"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.input); got != tt.expected {
			t.Errorf("escapeMarkdownV2(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	if _, err := newClient(&fakeBot{}, "not-a-number", 3, time.Second); err == nil {
		t.Error("Expected error for invalid chat ID")
	}
}

func TestSend_Retries(t *testing.T) {
	b := &fakeBot{failures: 2}
	c := testClient(t, b, 3)

	if err := c.SendRecovery(4); err != nil {
		t.Fatalf("SendRecovery failed: %v", err)
	}
	if b.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", b.calls)
	}
	if b.last.ParseMode != tgbotapi.ModeMarkdownV2 || b.last.ChatID != 12345 {
		t.Errorf("Unexpected message config: %+v", b.last)
	}
	if !strings.Contains(b.last.Text, "4 consecutive failures") {
		t.Errorf("Unexpected recovery text: %q", b.last.Text)
	}
}

func TestSend_GivesUp(t *testing.T) {
	b := &fakeBot{failures: 10}
	c := testClient(t, b, 2)

	if err := c.SendRecovery(1); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if b.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", b.calls)
	}
}

func TestFormatTierAlert(t *testing.T) {
	c := testClient(t, &fakeBot{}, 1)
	forecast := 28.4
	reading := models.Reading{
		Temperature:   31.5,
		Humidity:      72,
		Timestamp:     time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
		ForecastIndex: &forecast,
	}
	ov := dashboard.Overview{
		HasData:        true,
		Reading:        &reading,
		Index:          29.7,
		Classification: comfort.Classify(29.7),
		Forecast:       &dashboard.Forecast{Index: forecast, Classification: comfort.Classify(forecast)},
	}

	text := c.formatTierAlert(ov)
	for _, want := range []string{"*Heat Stress*", "29\\.7", "31\\.5°C", "72%", "2024\\-01\\-01 13:00:00", "Forecast: 28\\.4"} {
		if !strings.Contains(text, want) {
			t.Errorf("Tier alert missing %q:\n%s", want, text)
		}
	}
}

func TestFormatDegraded(t *testing.T) {
	c := testClient(t, &fakeBot{}, 1)
	now := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	state := models.NewSyncState()
	state.IsDegraded = true
	state.LastError = "fetch failure: unexpected status 502"
	state.LastSuccessfulFetchAt = now.Add(-5 * time.Minute)

	text := c.formatDegraded(state)
	if !strings.Contains(text, "`fetch failure: unexpected status 502`") {
		t.Errorf("Degraded notice missing error:\n%s", text)
	}
	if !strings.Contains(text, "5m ago") {
		t.Errorf("Degraded notice missing staleness:\n%s", text)
	}

	if text := c.formatDegraded(models.NewSyncState()); !strings.Contains(text, "No data received yet") {
		t.Errorf("Expected no-data notice:\n%s", text)
	}
}
