package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/gomoku/executor/convert"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize      = 128
	DefaultBatchTimeout   = 1 * time.Millisecond
	DefaultRequestTimeout = 5 * time.Second
)

type BatcherConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// RequestTimeout bounds the wait for one evaluation. 0 waits forever.
	RequestTimeout time.Duration
	// QueueSize is the request channel capacity. Producers block when it is full.
	QueueSize int
	History   int
}

func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:      DefaultBatchSize,
		BatchTimeout:   DefaultBatchTimeout,
		RequestTimeout: DefaultRequestTimeout,
		QueueSize:      DefaultBatchSize * 2,
		History:        convert.DefaultHistory,
	}
}

type request struct {
	id    uint64
	input *[]float32
	resp  chan response
}

type response struct {
	pred mcts.Prediction
	err  error
}

// RuntimeStats summarises batching since start.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// Batcher collects Predict calls from many goroutines into batches for a
// single Model. One goroutine owns the model; callers wait on a per-request
// channel.
type Batcher struct {
	model Model
	enc   *convert.Encoder
	size  int
	cfg   BatcherConfig
	log   zerolog.Logger

	requests chan request
	nextID   atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

type BatcherOption func(*Batcher)

func WithBatcherLogger(l zerolog.Logger) BatcherOption {
	return func(b *Batcher) { b.log = l }
}

// NewBatcher starts the batching loop for positions of boardSize.
func NewBatcher(model Model, boardSize int, cfg BatcherConfig, opts ...BatcherOption) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.BatchSize * 2
	}
	if cfg.History <= 0 {
		cfg.History = convert.DefaultHistory
	}

	b := &Batcher{
		model:    model,
		enc:      convert.NewEncoder(boardSize, cfg.History),
		size:     boardSize,
		cfg:      cfg,
		log:      zerolog.Nop(),
		requests: make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.batchLoop()
	return b
}

// Predict enqueues state and waits for its evaluation.
func (b *Batcher) Predict(ctx context.Context, state *game.State) (mcts.Prediction, error) {
	if state.Size != b.size {
		return mcts.Prediction{}, fmt.Errorf("board size %d does not match oracle size %d", state.Size, b.size)
	}

	req := request{
		id:    b.nextID.Add(1),
		input: b.enc.Encode(state),
		resp:  make(chan response, 1),
	}

	var timeout <-chan time.Time
	if b.cfg.RequestTimeout > 0 {
		timer := time.NewTimer(b.cfg.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.requests <- req:
	case <-b.done:
		b.enc.PutBuffer(req.input)
		return mcts.Prediction{}, ErrClosed
	case <-ctx.Done():
		b.enc.PutBuffer(req.input)
		return mcts.Prediction{}, ctx.Err()
	case <-timeout:
		b.enc.PutBuffer(req.input)
		return mcts.Prediction{}, fmt.Errorf("request %d queued: %w", req.id, ErrOracleTimeout)
	}

	select {
	case r := <-req.resp:
		return r.pred, r.err
	case <-b.stopped:
		// The loop may have answered just before stopping.
		select {
		case r := <-req.resp:
			return r.pred, r.err
		default:
			return mcts.Prediction{}, ErrClosed
		}
	case <-ctx.Done():
		return mcts.Prediction{}, ctx.Err()
	case <-timeout:
		return mcts.Prediction{}, fmt.Errorf("request %d: %w", req.id, ErrOracleTimeout)
	}
}

// Close stops the batching loop. Queued requests fail with ErrClosed.
func (b *Batcher) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	<-b.stopped
	return nil
}

func (b *Batcher) Stats() RuntimeStats {
	batches := b.batches.Load()
	items := b.items.Load()
	runNanos := b.runNanos.Load()

	st := RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: b.last.Load(),
		QueueLen:      len(b.requests),
	}
	if batches > 0 {
		st.AvgBatchSize = float64(items) / float64(batches)
		st.AvgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}
	return st
}

func (b *Batcher) batchLoop() {
	defer close(b.stopped)

	floats := b.enc.FloatSize()
	batchInput := make([]float32, 0, b.cfg.BatchSize*floats)
	requests := make([]request, 0, b.cfg.BatchSize)

	ticker := time.NewTicker(b.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		b.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-b.requests:
			requests = append(requests, req)
			batchInput = append(batchInput, (*req.input)...)
			b.enc.PutBuffer(req.input)

			if len(requests) >= b.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			if len(requests) > 0 {
				flush()
			}
		case <-b.done:
			b.failBatch(requests, ErrClosed)
			for {
				select {
				case req := <-b.requests:
					b.enc.PutBuffer(req.input)
					req.resp <- response{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (b *Batcher) runBatch(requests []request, batchInput []float32) {
	n := len(requests)
	cells := b.size * b.size

	start := time.Now()
	policy, value, err := b.model.Run(batchInput, n)
	elapsed := time.Since(start)
	if err != nil {
		b.log.Error().Err(err).Int("batch", n).Uint64("first_id", requests[0].id).Msg("batch failed")
		b.failBatch(requests, fmt.Errorf("run batch of %d: %w", n, err))
		return
	}
	if len(policy) != n*cells || len(value) != n {
		b.failBatch(requests, fmt.Errorf("model returned %d policy and %d value entries for batch of %d", len(policy), len(value), n))
		return
	}

	b.batches.Add(1)
	b.items.Add(int64(n))
	b.runNanos.Add(elapsed.Nanoseconds())
	b.last.Store(int64(n))

	for i, req := range requests {
		p := make([]float32, cells)
		copy(p, policy[i*cells:(i+1)*cells])
		req.resp <- response{pred: mcts.Prediction{Policy: p, Value: value[i]}}
	}
}

func (b *Batcher) failBatch(requests []request, err error) {
	for _, req := range requests {
		req.resp <- response{err: err}
	}
}
