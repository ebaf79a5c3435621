package notify

import (
	"context"
	"sync"

	"camwatch/internal/logger"
)

// LogNotifier writes messages to the log instead of delivering them. Used when no transport is configured.
type LogNotifier struct {
	sender
	logger *logger.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	n := &LogNotifier{logger: logger}
	n.sender = sender{send: n.send}
	return n
}

func (n *LogNotifier) send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()

	if msg.MediaURL != "" {
		n.logger.Warning("[notify:%s] %s %s", msg.Kind, msg.Body, msg.MediaURL)
	} else {
		n.logger.Warning("[notify:%s] %s", msg.Kind, msg.Body)
	}
	return nil
}

// Sent returns a copy of every message logged so far.
func (n *LogNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}

var _ Notifier = (*LogNotifier)(nil)
