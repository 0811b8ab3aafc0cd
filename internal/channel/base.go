package channel

import (
	"context"

	"github.com/stellarlinkco/chatscribe/internal/bus"
)

// Channel is a chat platform connection.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// Directory resolves platform ids to display names.
type Directory interface {
	UserName(ctx context.Context, id int64) (string, error)
	ChatName(ctx context.Context, id int64) (string, error)
}

// BaseChannel carries the name, bus and sender allow-list shared by channels.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether senderID may talk to the bot. An empty allow-list admits
// everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}
