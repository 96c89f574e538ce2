package main

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// connect retries fn with exponential backoff so the service can start
// before its databases are reachable.
func connect(ctx context.Context, logger *zap.SugaredLogger, backend string, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(func() error {
		return fn(ctx)
	},
		retry.Attempts(uint(attempts)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Second),
		retry.MaxDelay(15*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw("Connection failed, retrying",
				"backend", backend,
				"attempt", n+1,
				"error", err,
			)
		}),
		retry.Context(ctx),
	)
}
