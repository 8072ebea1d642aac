package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence surface for audit events. Implementations are
// append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Publisher hands audit events to the worker without blocking the pipeline.
// A full inbox drops the event with a warning; audit is best-effort and must
// never stall an ingestion run.
type Publisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewPublisher(inbox chan<- Event, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{inbox: inbox, logger: logger}
}

// Emit stamps and enqueues an event. Safe to call with a nil publisher so
// the pipeline can run without an audit trail wired.
func (p *Publisher) Emit(event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping event",
			slog.String("source", event.Source),
			slog.String("action", string(event.Action)))
	}
}
