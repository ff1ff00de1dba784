package session

import (
	"context"

	"github.com/sethvargo/go-retry"

	"chatclient/internal/app/transport"
	"chatclient/internal/app/user"
)

// backoff returns the retry schedule for one connect cycle: exponential from
// ReconnectBaseDelay, capped at ReconnectMaxDelay, at most ReconnectAttempts retries.
func (m *Manager) backoff() retry.Backoff {
	b := retry.NewExponential(m.cfg.ReconnectBaseDelay)
	b = retry.WithCappedDuration(m.cfg.ReconnectMaxDelay, b)
	return retry.WithMaxRetries(m.cfg.ReconnectAttempts, b)
}

// dial runs on its own goroutine and reports the outcome to the loop.
func (m *Manager) dial(ctx context.Context, gen uint64, u user.User) {
	var conn transport.Conn

	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		m.metrics.connectAttempts.Inc()

		c, err := m.transport.Dial(ctx, u.ID, u.Name)
		if err != nil {
			m.logger.Debug().Err(err).Str("user_id", u.ID).Msg("Dial attempt failed")
			return retry.RetryableError(err)
		}

		conn = c
		return nil
	})

	select {
	case m.dialed <- dialResult{gen: gen, conn: conn, err: err}:
	case <-m.done:
		if conn != nil {
			_ = conn.Close()
		}
	}
}
