package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brensch/gomoku/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoModel returns each position's own-stone plane as its policy, so a
// caller can tell whose answer it received. It records every batch size.
type echoModel struct {
	cells int

	mu      sync.Mutex
	batches []int
}

func (m *echoModel) Run(input []float32, batch int) ([]float32, []float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, batch)
	m.mu.Unlock()

	stride := len(input) / batch
	policy := make([]float32, 0, batch*m.cells)
	value := make([]float32, batch)
	for i := 0; i < batch; i++ {
		policy = append(policy, input[i*stride:i*stride+m.cells]...)
		value[i] = float32(i) / float32(batch)
	}
	return policy, value, nil
}

func (m *echoModel) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batches...)
}

// gateModel blocks every Run until release is closed.
type gateModel struct {
	cells   int
	release chan struct{}
	runs    atomic.Int32
}

func (m *gateModel) Run(input []float32, batch int) ([]float32, []float32, error) {
	m.runs.Add(1)
	<-m.release
	return UniformModel{Cells: m.cells}.Run(input, batch)
}

type errModel struct{}

var errModelBroken = errors.New("model broken")

func (errModel) Run([]float32, int) ([]float32, []float32, error) {
	return nil, nil, errModelBroken
}

// stoneAt returns a 5x5 state with one black stone at cell and Black to move.
func stoneAt(cell int) *game.State {
	s := game.NewState(5)
	s.Cells[cell] = game.Black
	return s
}

func TestBatcherRoutesResults(t *testing.T) {
	model := &echoModel{cells: 25}
	b := NewBatcher(model, 5, BatcherConfig{BatchSize: 8, BatchTimeout: 20 * time.Millisecond, RequestTimeout: 5 * time.Second})
	defer b.Close()

	var wg sync.WaitGroup
	for cell := 0; cell < 20; cell++ {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			pred, err := b.Predict(context.Background(), stoneAt(cell))
			if !assert.NoError(t, err) {
				return
			}
			assert.Len(t, pred.Policy, 25)
			for i, p := range pred.Policy {
				if i == cell {
					assert.Equal(t, float32(1), p, "cell %d got someone else's answer", cell)
				} else {
					assert.Zero(t, p)
				}
			}
		}(cell)
	}
	wg.Wait()

	total := 0
	for _, n := range model.batchSizes() {
		require.LessOrEqual(t, n, 8)
		total += n
	}
	require.Equal(t, 20, total, "every request evaluated exactly once")

	st := b.Stats()
	require.Equal(t, int64(20), st.TotalItems)
	require.Equal(t, int64(len(model.batchSizes())), st.TotalBatches)
	require.Greater(t, st.AvgBatchSize, 0.0)
}

func TestBatcherFullBatchDoesNotWaitForTimeout(t *testing.T) {
	model := &echoModel{cells: 25}
	b := NewBatcher(model, 5, BatcherConfig{BatchSize: 4, BatchTimeout: time.Hour})
	defer b.Close()

	var wg sync.WaitGroup
	for cell := 0; cell < 4; cell++ {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			_, err := b.Predict(context.Background(), stoneAt(cell))
			assert.NoError(t, err)
		}(cell)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("full batch was not flushed")
	}
	require.Equal(t, []int{4}, model.batchSizes())
}

func TestBatcherRequestTimeout(t *testing.T) {
	model := &gateModel{cells: 25, release: make(chan struct{})}
	b := NewBatcher(model, 5, BatcherConfig{BatchSize: 1, RequestTimeout: 20 * time.Millisecond})
	defer b.Close()
	defer close(model.release)

	_, err := b.Predict(context.Background(), stoneAt(0))
	require.ErrorIs(t, err, ErrOracleTimeout)
}

func TestBatcherBackpressureDropsNothing(t *testing.T) {
	model := &gateModel{cells: 25, release: make(chan struct{})}
	b := NewBatcher(model, 5, BatcherConfig{BatchSize: 2, QueueSize: 1, BatchTimeout: time.Millisecond})
	defer b.Close()

	const n = 12
	var answered atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Predict(context.Background(), stoneAt(i))
			assert.NoError(t, err)
			answered.Add(1)
		}(i)
	}

	require.Eventually(t, func() bool { return model.runs.Load() >= 1 }, 5*time.Second, time.Millisecond)
	require.LessOrEqual(t, b.Stats().QueueLen, 1, "queue never grows past its capacity")
	require.Zero(t, answered.Load())

	close(model.release)
	wg.Wait()
	require.Equal(t, int32(n), answered.Load())
	require.Equal(t, int64(n), b.Stats().TotalItems)
}

func TestBatcherModelErrorFailsWholeBatch(t *testing.T) {
	b := NewBatcher(errModel{}, 5, BatcherConfig{BatchSize: 3, BatchTimeout: 10 * time.Millisecond})
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Predict(context.Background(), stoneAt(i))
			assert.ErrorIs(t, err, errModelBroken)
		}(i)
	}
	wg.Wait()
	require.Zero(t, b.Stats().TotalBatches)
}

func TestBatcherClosed(t *testing.T) {
	b := NewBatcher(UniformModel{Cells: 25}, 5, BatcherConfig{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	_, err := b.Predict(context.Background(), stoneAt(0))
	require.ErrorIs(t, err, ErrClosed)
}

func TestBatcherContextCancelled(t *testing.T) {
	model := &gateModel{cells: 25, release: make(chan struct{})}
	b := NewBatcher(model, 5, BatcherConfig{BatchSize: 1})
	defer b.Close()
	defer close(model.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Predict(ctx, stoneAt(0))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBatcherRejectsWrongBoardSize(t *testing.T) {
	b := NewBatcher(UniformModel{Cells: 25}, 5, BatcherConfig{})
	defer b.Close()
	_, err := b.Predict(context.Background(), game.NewState(7))
	require.Error(t, err)
}

func TestPoolRoundRobin(t *testing.T) {
	m1 := &echoModel{cells: 25}
	m2 := &echoModel{cells: 25}
	cfg := BatcherConfig{BatchSize: 1}
	b1 := NewBatcher(m1, 5, cfg)
	b2 := NewBatcher(m2, 5, cfg)
	p, err := NewPool(b1, b2)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 4; i++ {
		_, err := p.Predict(context.Background(), stoneAt(i))
		require.NoError(t, err)
	}
	require.Len(t, m1.batchSizes(), 2)
	require.Len(t, m2.batchSizes(), 2)
	require.Equal(t, int64(4), p.Stats().TotalItems)

	_, err = NewPool()
	require.Error(t, err)
}
