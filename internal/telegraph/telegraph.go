// Package telegraph bridges hive health events to chat platforms (Slack,
// Discord).
package telegraph

import "context"

// Sink is a chat platform that accepts outbound notifications.
type Sink interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Post delivers msg. Implementations retry platform rate limits
	// themselves and honour ctx cancellation.
	Post(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is a message to be sent to a chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel; empty uses the sink's default
	Text      string           // fallback text (platform-native formatting)
	Events    []FormattedEvent // structured attachments
}

// FormattedEvent is a hive event formatted for display in chat.
type FormattedEvent struct {
	Title    string  // headline, e.g. "Critical CPU Usage"
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint, e.g. "#36a64f"
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}
