package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInboundMessage_SessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "42"}
	if got := msg.SessionKey(); got != "telegram:42" {
		t.Errorf("SessionKey = %q, want telegram:42", got)
	}
}

func TestInboundMessage_IsCommand(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"/summary", true},
		{"/query what happened", true},
		{"/", false},
		{"hello /summary", false},
		{"", false},
	}
	for _, tt := range tests {
		msg := InboundMessage{Content: tt.content}
		if got := msg.IsCommand(); got != tt.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestMessageBus_DispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)

	var (
		mu  sync.Mutex
		got []OutboundMessage
	)
	done := make(chan struct{}, 2)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "other", ChatID: "1", Content: "dropped"}
	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "1", Content: "first"}
	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "1", Content: "second"}

	for range 2 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("dispatched = %+v", got)
	}
}

func TestMessageBus_DispatchStopsOnCancel(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		b.DispatchOutbound(ctx)
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("DispatchOutbound did not return after cancel")
	}
}
