package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

// idempotent runs fn at most once per key. A key still held by a running call
// yields ErrDuplicateRequest; a key whose call succeeded replays the stored
// result; a failed call releases the key so it can be retried.
func idempotent[T any](ctx context.Context, d Deps, key string, fn func() (T, error)) (T, error) {
	var zero T
	if key == "" || d.Idempotency == nil {
		return fn()
	}

	stored, reserved, err := d.Idempotency.Reserve(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !reserved {
		if stored == "" {
			return zero, domain.ErrDuplicateRequest
		}
		var replay T
		if err := json.Unmarshal([]byte(stored), &replay); err != nil {
			return zero, fmt.Errorf("decode stored result: %w", err)
		}
		return replay, nil
	}

	result, err := fn()

	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		if rerr := d.Idempotency.Release(settleCtx, key); rerr != nil {
			logging.Log(logging.Fields{Step: "idempotency_release", Status: "failed", Error: rerr.Error()})
		}
		return zero, err
	}

	data, merr := json.Marshal(result)
	if merr == nil {
		merr = d.Idempotency.Complete(settleCtx, key, string(data))
	}
	if merr != nil {
		logging.Log(logging.Fields{Step: "idempotency_complete", Status: "failed", Error: merr.Error()})
	}
	return result, nil
}
