package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and persists them. Append
// failures are logged and skipped; a flaky audit store must not take the
// worker down with it.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.Error("failed to persist audit event",
					slog.String("source", event.Source),
					slog.String("action", string(event.Action)),
					slog.String("error", err.Error()))
			}
		}
	}
}
