package email

import (
	"context"
	"log/slog"
	"sync"
)

// LogSender writes messages to a logger instead of sending them. It also
// keeps every accepted message in memory, which tests use to assert on
// delivery.
type LogSender struct {
	log  *slog.Logger
	mu   sync.Mutex
	sent []Message
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) SendEmail(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.log.InfoContext(ctx, "email not sent: log sender",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("tag", msg.Tag),
		slog.String("body", msg.TextBody),
	)
	return nil
}

// Sent returns a copy of the accepted messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
