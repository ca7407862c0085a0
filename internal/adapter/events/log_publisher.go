package events

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

// LogPublisher writes events to the structured log. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event domain.Event) error {
	logging.Log(logging.Fields{
		Step:    "event",
		Status:  event.Type,
		Message: event.Key,
	})
	return nil
}
