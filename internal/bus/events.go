package bus

import (
	"time"
)

// InboundMessage is a text message received from a chat platform.
type InboundMessage struct {
	Channel    string
	SenderID   string
	SenderName string
	ChatID     string
	ChatName   string
	Content    string
	Timestamp  time.Time
	Metadata   map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// IsCommand reports whether the message is a bot command such as "/summary".
func (m *InboundMessage) IsCommand() bool {
	return len(m.Content) > 1 && m.Content[0] == '/'
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}
