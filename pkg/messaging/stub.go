package messaging

import (
	"context"

	"go.uber.org/zap"
)

// StubSender logs instead of delivering; used in development and tests.
type StubSender struct {
	Logger *zap.Logger
}

func (s *StubSender) Send(ctx context.Context, msg Message) error {
	if s.Logger != nil {
		s.Logger.Info("stub message send",
			zap.String("recipient", msg.Recipient),
			zap.String("template", msg.Template))
	}
	return nil
}
