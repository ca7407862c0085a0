package port

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
)

type IdempotencyRepository interface {
	// Reserve claims key. When the key is already held it returns reserved=false
	// and the stored value: empty while the first request is still running,
	// otherwise the result recorded by Complete.
	Reserve(ctx context.Context, key string) (stored string, reserved bool, err error)

	// Complete records the result for a reserved key.
	Complete(ctx context.Context, key string, result string) error

	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
