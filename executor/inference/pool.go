package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Pool fans Predict calls out across several batchers, each with its own
// model session, so that batches can run in parallel.
type Pool struct {
	members []*Batcher
	rr      atomic.Uint64
}

func NewPool(members ...*Batcher) (*Pool, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("pool needs at least one batcher")
	}
	return &Pool{members: members}, nil
}

// NewOnnxPool opens sessions ONNX sessions, each behind its own batcher.
func NewOnnxPool(cfg OnnxConfig, sessions int, bcfg BatcherConfig, log zerolog.Logger) (*Pool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	p := &Pool{}
	for i := 0; i < sessions; i++ {
		model, err := NewOnnxModel(cfg, log)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, sessions, err)
		}
		b := NewBatcher(model, cfg.BoardSize, bcfg, WithBatcherLogger(log.With().Int("session", i).Logger()))
		p.members = append(p.members, b)
	}
	return p, nil
}

func (p *Pool) Predict(ctx context.Context, state *game.State) (mcts.Prediction, error) {
	idx := int(p.rr.Add(1)-1) % len(p.members)
	return p.members[idx].Predict(ctx, state)
}

func (p *Pool) Stats() RuntimeStats {
	stats := lo.Map(p.members, func(m *Batcher, _ int) RuntimeStats { return m.Stats() })
	batches := lo.SumBy(stats, func(st RuntimeStats) int64 { return st.TotalBatches })
	items := lo.SumBy(stats, func(st RuntimeStats) int64 { return st.TotalItems })
	runNanos := lo.SumBy(stats, func(st RuntimeStats) int64 { return st.TotalRunNanos })
	queue := lo.SumBy(stats, func(st RuntimeStats) int { return st.QueueLen })
	last := lo.MaxBy(stats, func(a, b RuntimeStats) bool { return a.LastBatchSize > b.LastBatchSize }).LastBatchSize

	avgBatch := 0.0
	avgRunMs := 0.0
	if batches > 0 {
		avgBatch = float64(items) / float64(batches)
		avgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}

	return RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: last,
		QueueLen:      queue,
		AvgBatchSize:  avgBatch,
		AvgRunMs:      avgRunMs,
	}
}

func (p *Pool) Close() error {
	var firstErr error
	for _, m := range p.members {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if c, ok := m.model.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
