package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus connects channels to the gateway. Channels publish on Inbound; the
// gateway publishes on Outbound and DispatchOutbound routes each reply to the
// subscribers of its channel.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize < 0 {
		bufSize = 0
	}
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string][]func(OutboundMessage)),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], fn)
}

// DispatchOutbound delivers outbound messages until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) dispatch(msg OutboundMessage) {
	b.mu.RLock()
	subs := b.subscribers[msg.Channel]
	b.mu.RUnlock()

	if len(subs) == 0 {
		log.Printf("[bus] no subscriber for channel %q, dropping message", msg.Channel)
		return
	}
	for _, fn := range subs {
		fn(msg)
	}
}
