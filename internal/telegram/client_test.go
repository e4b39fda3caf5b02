package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/bizalert/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"600.000 ₫", "600\\.000 ₫"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"-10,0%", "\\-10,0%"},
		{"`code`", "\\`code\\`"},
		{"#header", "\\#header"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	alerts := []models.Alert{
		{Severity: models.SeverityMedium, Message: "Ad cost 35.0%", Timestamp: ts},
		{Severity: models.SeverityCritical, Message: "Branch Cần Thơ (revenue 100.000 ₫)", Timestamp: ts},
	}

	parts := formatMessages(alerts)
	if len(parts) != 1 {
		t.Fatalf("got %d messages, want 1", len(parts))
	}
	msg := parts[0]

	if !strings.HasPrefix(msg, "🚨 *Sales Alerts*") {
		t.Errorf("missing header: %q", msg)
	}
	if !strings.Contains(msg, "2025\\-07\\-01 09:30:00") {
		t.Errorf("missing escaped timestamp: %q", msg)
	}
	critical := strings.Index(msg, "*CRITICAL*")
	medium := strings.Index(msg, "*MEDIUM*")
	if critical < 0 || medium < 0 || critical > medium {
		t.Errorf("critical alert should come first: %q", msg)
	}
	if !strings.Contains(msg, "\\(revenue 100\\.000 ₫\\)") {
		t.Errorf("message text should be escaped: %q", msg)
	}
	if alerts[0].Severity != models.SeverityMedium {
		t.Error("formatMessages must not reorder its input")
	}
}

func TestFormatMessages_SplitsLongDigests(t *testing.T) {
	ts := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	long := strings.Repeat("Chi nhánh Cần Thơ doanh thu 100.000 ₫ (thiếu 900.000 ₫). ", 4)

	var alerts []models.Alert
	for i := 0; i < 60; i++ {
		alerts = append(alerts, models.Alert{Severity: models.SeverityCritical, Message: long, Timestamp: ts})
	}

	parts := formatMessages(alerts)
	if len(parts) < 2 {
		t.Fatalf("expected the digest to be split, got %d message(s)", len(parts))
	}
	for i, p := range parts {
		if n := textLen(p); n > maxMessageLen {
			t.Errorf("part %d is %d units, limit %d", i, n, maxMessageLen)
		}
		if hasHeader := strings.HasPrefix(p, "🚨 *Sales Alerts*"); hasHeader != (i == 0) {
			t.Errorf("part %d header = %v", i, hasHeader)
		}
	}

	joined := strings.Join(parts, "")
	if got := strings.Count(joined, "*CRITICAL*"); got != len(alerts) {
		t.Errorf("got %d alert lines across parts, want %d", got, len(alerts))
	}
	if !strings.Contains(joined, "60\\. ") {
		t.Error("numbering should continue across parts")
	}
}

func TestFormatMessages_TruncatesOversizedAlert(t *testing.T) {
	alert := models.Alert{Severity: models.SeverityHigh, Message: strings.Repeat("x.", 5000), Timestamp: time.Now()}

	parts := formatMessages([]models.Alert{alert})
	if len(parts) != 1 {
		t.Fatalf("got %d messages, want 1", len(parts))
	}
	if n := textLen(parts[0]); n > maxMessageLen {
		t.Errorf("message is %d units, limit %d", n, maxMessageLen)
	}
	if !strings.Contains(parts[0], "…") {
		t.Error("oversized alert text should be truncated")
	}
}

func TestTextLen(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"abc", 3},
		{"₫", 1},
		{"🚨", 2},
		{"", 0},
	}
	for _, tt := range tests {
		if got := textLen(tt.in); got != tt.want {
			t.Errorf("textLen(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is parsed before any network call.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}
