package connection

import (
	"context"
	"time"

	"github.com/tdsgo/tds/internal/errs"
)

// ResiliencyPolicy holds the validated connect_retry_count/interval pair
// (spec.md S4.4). dsn.validate already range-checked these; this type just
// carries them into the reconnect loop.
type ResiliencyPolicy struct {
	RetryCount    int
	RetryInterval time.Duration
	LoginTimeout  time.Duration
}

// reconnect implements spec.md S4.4's mid-query break recovery: up to
// RetryCount attempts, each bounded by LoginTimeout, RetryInterval apart —
// unless RetryInterval exceeds the caller's remaining query timeout, in
// which case it fails immediately rather than blocking past the query
// deadline.
func reconnect(ctx context.Context, policy ResiliencyPolicy, queryTimeout time.Duration, attempt func(ctx context.Context) error) error {
	if policy.RetryCount == 0 {
		return errs.New(errs.KindConnectionClosed, "connection.reconnect", "connection broken and connect_retry_count is 0")
	}
	if queryTimeout > 0 && policy.RetryInterval > queryTimeout {
		return errs.New(errs.KindQueryTimeout, "connection.reconnect", "retry interval exceeds remaining query timeout")
	}

	var lastErr error
	for i := 0; i < policy.RetryCount; i++ {
		if i > 0 {
			select {
			case <-time.After(policy.RetryInterval):
			case <-ctx.Done():
				return errs.Wrap(ctx.Err(), errs.KindConnectionClosed, "connection.reconnect", "context canceled while waiting to retry")
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, policy.LoginTimeout)
		err := attempt(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return errs.Wrap(lastErr, errs.KindConnectionClosed, "connection.reconnect", "exhausted connect_retry_count attempts")
}

// ExpectedRetryEnvelope returns the worst-case wall-clock spec.md S4.4's
// Testable Property #8 checks against: interval*(count-1) + login*count.
func ExpectedRetryEnvelope(policy ResiliencyPolicy) time.Duration {
	if policy.RetryCount <= 0 {
		return 0
	}
	return policy.RetryInterval*time.Duration(policy.RetryCount-1) + policy.LoginTimeout*time.Duration(policy.RetryCount)
}
