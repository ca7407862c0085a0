package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/metrics"
	"github.com/rl1809/marketplace/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/marketplace/internal/core/service")

const defaultTxAttempts = 2

// Deps are shared by every service. Store is required; the rest may be nil.
type Deps struct {
	Store         port.Store
	Idempotency   port.IdempotencyRepository
	Events        port.EventPublisher
	Metrics       *metrics.ServerMetrics
	TxMaxAttempts int
	Now           func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// runTx runs fn in a transaction, retrying on lock conflicts. When every
// attempt conflicts it returns domain.ErrConcurrentUpdate.
func (d Deps) runTx(ctx context.Context, fn func(ctx context.Context, repo port.Repository) error) error {
	attempts := d.TxMaxAttempts
	if attempts < 1 {
		attempts = defaultTxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = d.Store.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, port.ErrTxConflict) {
			return err
		}
		if attempt < attempts {
			d.Metrics.ObserveRetry()
		}
	}

	logging.Log(logging.Fields{Step: "tx", Status: "conflict_exhausted", Error: err.Error()})
	return domain.ErrConcurrentUpdate
}

func (d Deps) publish(ctx context.Context, event domain.Event) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, event); err != nil {
		logging.Log(logging.Fields{Step: "event", Status: "publish_failed", Message: event.Type, Error: err.Error()})
	}
}
