package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/hive/internal/telegraph"
)

// --- Mock session ---

type mockSession struct {
	mu        sync.Mutex
	sent      []sentMessage
	sendErr   error
	failCount int // leading calls that return HTTP 429
	calls     int
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failCount {
		return nil, rateLimitErr()
	}
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.calls), ChannelID: channelID}, nil
}

func rateLimitErr() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func newTestSink(t *testing.T) (*Sink, *mockSession) {
	t.Helper()
	sess := &mockSession{}
	s, err := New(SinkOpts{ChannelID: "chan-alerts", Session: sess})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.baseBackoff = time.Millisecond
	s.maxBackoff = 5 * time.Millisecond
	return s, sess
}

// --- New tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(SinkOpts{ChannelID: "c"})
	if err == nil || !strings.Contains(err.Error(), "bot token is required") {
		t.Fatalf("expected bot token error, got %v", err)
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	_, err := New(SinkOpts{BotToken: "tok"})
	if err == nil || !strings.Contains(err.Error(), "channel is required") {
		t.Fatalf("expected channel error, got %v", err)
	}
}

func TestNew_RealSession(t *testing.T) {
	s, err := New(SinkOpts{BotToken: "tok", ChannelID: "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.sess == nil {
		t.Fatal("expected a real session")
	}
	if s.Name() != "discord" {
		t.Errorf("Name = %q", s.Name())
	}
}

// --- Post tests ---

func TestPost_WithEvents(t *testing.T) {
	s, sess := newTestSink(t)
	msg := telegraph.OutboundMessage{
		Text: "alert",
		Events: []telegraph.FormattedEvent{
			{Title: "Queue Backlog", Body: "105 tasks", Color: telegraph.ColorWarning},
		},
	}
	if err := s.Post(context.Background(), msg); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sess.sent))
	}
	got := sess.sent[0]
	if got.channelID != "chan-alerts" {
		t.Errorf("channel = %q", got.channelID)
	}
	if got.data.Content != "alert" || len(got.data.Embeds) != 1 {
		t.Errorf("data = %+v", got.data)
	}
}

func TestPost_ExplicitChannel(t *testing.T) {
	s, sess := newTestSink(t)
	s.Post(context.Background(), telegraph.OutboundMessage{ChannelID: "other", Text: "x"})
	if sess.sent[0].channelID != "other" {
		t.Errorf("channel = %q, want other", sess.sent[0].channelID)
	}
}

func TestPost_Error(t *testing.T) {
	s, sess := newTestSink(t)
	sess.sendErr = fmt.Errorf("missing access")
	err := s.Post(context.Background(), telegraph.OutboundMessage{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "discord: send message") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if sess.calls != 1 {
		t.Errorf("calls = %d, non-rate-limit errors should not retry", sess.calls)
	}
}

func TestPost_RetriesOnRateLimit(t *testing.T) {
	s, sess := newTestSink(t)
	sess.failCount = 2
	if err := s.Post(context.Background(), telegraph.OutboundMessage{Text: "x"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sess.calls != 3 {
		t.Errorf("calls = %d, want 3", sess.calls)
	}
}

func TestPost_ExhaustsRetries(t *testing.T) {
	s, sess := newTestSink(t)
	sess.failCount = 100
	if err := s.Post(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if sess.calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", sess.calls, maxRetries+1)
	}
}

func TestPost_RespectsContext(t *testing.T) {
	s, sess := newTestSink(t)
	s.baseBackoff = time.Second
	sess.failCount = 100
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Post(ctx, telegraph.OutboundMessage{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), context.Canceled.Error()) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

// --- conversion tests ---

func TestToEmbed(t *testing.T) {
	embed := toEmbed(telegraph.FormattedEvent{
		Title: "Resolved: High CPU Usage",
		Body:  "cpu_health has cleared",
		Color: "#36a64f",
		Fields: []telegraph.Field{
			{Name: "Alert", Value: "cpu_health", Short: true},
			{Name: "Type", Value: "cpu_high"},
		},
	})
	if embed.Title != "Resolved: High CPU Usage" || embed.Description != "cpu_health has cleared" {
		t.Errorf("embed = %+v", embed)
	}
	if embed.Color != 0x36a64f {
		t.Errorf("color = %x, want 36a64f", embed.Color)
	}
	if len(embed.Fields) != 2 || !embed.Fields[0].Inline || embed.Fields[1].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestToEmbed_NoColor(t *testing.T) {
	if c := toEmbed(telegraph.FormattedEvent{Title: "x"}).Color; c != 0 {
		t.Errorf("color = %d, want 0", c)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"e53935", 0xe53935},
		{"#FF9800", 0xff9800},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	if !isRateLimited(rateLimitErr()) {
		t.Error("429 should be rate limited")
	}
	if !isRateLimited(fmt.Errorf("wrapped: %w", rateLimitErr())) {
		t.Error("wrapped 429 should be rate limited")
	}
	if isRateLimited(&discordgo.RESTError{Response: &http.Response{StatusCode: 500}}) {
		t.Error("500 should not be rate limited")
	}
	if isRateLimited(&discordgo.RESTError{}) {
		t.Error("nil response should not be rate limited")
	}
}
