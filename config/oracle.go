package config

import (
	"fmt"

	"github.com/brensch/gomoku/executor/inference"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"
)

// OpenOracle is an opened predictor together with its teardown.
type OpenOracle struct {
	Predictor mcts.Predictor
	close     func() error
}

func (o *OpenOracle) Close() error {
	if o == nil || o.close == nil {
		return nil
	}
	return o.close()
}

// Open builds the configured oracle behind a batcher (one per ONNX session)
// and wraps it with timeout retries.
func (c Config) Open(log zerolog.Logger) (*OpenOracle, error) {
	cells := c.Board.Size * c.Board.Size
	bcfg := c.Batcher()
	blog := inference.WithBatcherLogger(log.With().Str("component", "batcher").Logger())

	var pool *inference.Pool
	var err error
	switch c.Oracle.Kind {
	case OracleUniform:
		pool, err = inference.NewPool(inference.NewBatcher(inference.UniformModel{Cells: cells}, c.Board.Size, bcfg, blog))
	case OracleRandom:
		seed := c.Oracle.Seed
		if seed == 0 {
			seed = frand.Uint64n(1 << 63)
		}
		pool, err = inference.NewPool(inference.NewBatcher(inference.NewRandomModel(cells, seed), c.Board.Size, bcfg, blog))
	case OracleOnnx:
		pool, err = inference.NewOnnxPool(c.Onnx(), c.Oracle.Sessions, bcfg, log)
	default:
		err = fmt.Errorf("unknown oracle kind %q", c.Oracle.Kind)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("kind", c.Oracle.Kind).
		Int("batch_size", bcfg.BatchSize).
		Dur("batch_timeout", bcfg.BatchTimeout).
		Msg("oracle ready")

	return &OpenOracle{
		Predictor: inference.WithRetry(pool, c.Oracle.RetryAttempts, c.Oracle.RetryDelay, log),
		close:     pool.Close,
	}, nil
}
