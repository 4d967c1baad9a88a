// Package inference provides policy/value oracles for the search: fixed
// placeholders, ONNX Runtime models and a batching front end shared by many
// concurrent searches.
package inference

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
)

var (
	// ErrOracleTimeout is returned when a batched evaluation does not answer
	// within the request timeout.
	ErrOracleTimeout = errors.New("oracle timeout")
	// ErrClosed is returned by a Batcher after Close.
	ErrClosed = errors.New("oracle closed")
)

// Uniform predicts a flat policy over every cell and a constant value.
type Uniform struct {
	Value float32
}

func (u Uniform) Predict(_ context.Context, state *game.State) (mcts.Prediction, error) {
	return mcts.Prediction{Policy: uniformPolicy(state.NumCells()), Value: u.Value}, nil
}

func uniformPolicy(cells int) []float32 {
	policy := make([]float32, cells)
	p := 1 / float32(cells)
	for i := range policy {
		policy[i] = p
	}
	return policy
}

// Random predicts uniform(0,1) weights per cell and a uniform(-1,1) value.
// It is safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed+1))}
}

func (r *Random) Predict(_ context.Context, state *game.State) (mcts.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy := make([]float32, state.NumCells())
	r.fill(policy)
	return mcts.Prediction{Policy: policy, Value: r.value()}, nil
}

func (r *Random) fill(dst []float32) {
	for i := range dst {
		dst[i] = r.rng.Float32()
	}
}

func (r *Random) value() float32 {
	return r.rng.Float32()*2 - 1
}
