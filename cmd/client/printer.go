package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"chat-client/internal/models"
)

// messagePrinter writes each message of the active room once, in display order.
type messagePrinter struct {
	out io.Writer

	mu      sync.Mutex
	printed map[int64]map[int64]bool
}

func newMessagePrinter(out io.Writer) *messagePrinter {
	return &messagePrinter{out: out, printed: make(map[int64]map[int64]bool)}
}

func (p *messagePrinter) follow(ctx context.Context, a *app) {
	changes := a.messages.Watch(64)
	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-changes:
			if active, ok := a.chat.ActiveRoom(); ok && active == roomID {
				p.flush(a, roomID)
			}
		}
	}
}

func (p *messagePrinter) flush(a *app, roomID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen, ok := p.printed[roomID]
	if !ok {
		seen = make(map[int64]bool)
		p.printed[roomID] = seen
	}
	for _, msg := range a.chat.RoomMessages(roomID) {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true
		fmt.Fprintln(p.out, formatMessage(msg))
	}
}

func formatMessage(msg models.Message) string {
	name := msg.SenderDisplayName
	if msg.IsOwn {
		name = "you"
	}
	return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format("15:04"), name, msg.Content)
}
