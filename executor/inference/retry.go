package inference

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/rs/zerolog"
)

type retryPredictor struct {
	next     mcts.Predictor
	attempts uint
	delay    time.Duration
	log      zerolog.Logger
}

// WithRetry wraps p so that evaluations failing with ErrOracleTimeout are
// retried with exponential backoff. Other errors are returned immediately.
func WithRetry(p mcts.Predictor, attempts uint, delay time.Duration, log zerolog.Logger) mcts.Predictor {
	if attempts <= 1 {
		return p
	}
	return &retryPredictor{next: p, attempts: attempts, delay: delay, log: log}
}

func (r *retryPredictor) Predict(ctx context.Context, state *game.State) (mcts.Prediction, error) {
	return retry.DoWithData(
		func() (mcts.Prediction, error) {
			return r.next.Predict(ctx, state)
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrOracleTimeout)
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			r.log.Warn().Err(err).Uint("n", n).Int("ply", state.Ply()).Msg("oracle timed out, retrying")
			return retry.BackOffDelay(n, err, config)
		}),
	)
}

// Stats forwards the wrapped predictor's stats when it has any.
func (r *retryPredictor) Stats() RuntimeStats {
	if sp, ok := r.next.(interface{ Stats() RuntimeStats }); ok {
		return sp.Stats()
	}
	return RuntimeStats{}
}
