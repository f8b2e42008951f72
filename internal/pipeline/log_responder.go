package pipeline

import (
	"context"
	"log/slog"
)

// LogResponder is the fallback responder: it only logs the outcome.
type LogResponder struct {
	logger *slog.Logger
}

// NewLogResponder creates a responder that writes replies and errors to logger.
func NewLogResponder(logger *slog.Logger) *LogResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogResponder{logger: logger}
}

func (l *LogResponder) Send(ctx context.Context, content string) error {
	l.logger.Info("sending response", "content", content)
	return nil
}

func (l *LogResponder) Error(ctx context.Context, err error) error {
	l.logger.Error("pipeline failed", "err", err)
	return nil
}
