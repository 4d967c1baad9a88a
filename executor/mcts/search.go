package mcts

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brensch/gomoku/game"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"
)

const (
	winValue  float32 = 1
	drawValue float32 = 0
)

// Search is a persistent search handle for one board size. It is not safe for
// concurrent use; concurrent self-play gives every worker its own Search.
type Search struct {
	size      int
	config    Config
	rules     GameRules
	predictor Predictor
	log       zerolog.Logger

	src *rand.PCG
	rng *rand.Rand

	tree *Tree
	// rootState is the position at the tree root.
	rootState *game.State

	maxDepth int
	stats    SearchStats
}

type Option func(*Search)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Search) { s.log = l }
}

// WithRand replaces the seeded source used for noise and move sampling.
func WithRand(src *rand.PCG) Option {
	return func(s *Search) {
		s.src = src
		s.rng = rand.New(src)
	}
}

func NewSearch(boardSize int, cfg Config, rules GameRules, predictor Predictor, opts ...Option) (*Search, error) {
	if boardSize < 1 {
		return nil, fmt.Errorf("board size must be positive, got %d", boardSize)
	}
	if rules == nil || predictor == nil {
		return nil, fmt.Errorf("rules and predictor are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = frand.Uint64n(1<<63) + 1
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	s := &Search{
		size:      boardSize,
		config:    cfg,
		rules:     rules,
		predictor: predictor,
		log:       zerolog.Nop(),
		src:       src,
		rng:       rand.New(src),
		tree:      NewTree(game.Black),
		rootState: game.NewState(boardSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Search) Config() Config { return s.config }

// Tree exposes the current tree for inspection. It is invalidated by the next
// ChooseMove, Advance or Reset.
func (s *Search) Tree() *Tree { return s.tree }

// simulate runs one simulation from id, whose position is state, and returns
// the value of the position from the perspective of the player who moved into
// it. The caller folds that value into id.
func (s *Search) simulate(ctx context.Context, state *game.State, id NodeID, depth int) (float32, error) {
	if depth > s.maxDepth {
		s.maxDepth = depth
	}

	if last := state.LastMove(); last != game.NoAction && s.rules.IsWinningMove(state, last) {
		return winValue, nil
	}

	if !s.tree.IsExpanded(id) {
		return s.expand(ctx, state, id)
	}
	if s.tree.IsLeaf(id) {
		return drawValue, nil
	}

	action, child := s.tree.selectChild(id, s.config.Cpuct)
	next, err := s.rules.ApplyMove(state, action, s.tree.ToMove(id))
	if err != nil {
		return 0, fmt.Errorf("apply action %d at node %d: %w", action, id, err)
	}

	v, err := s.simulate(ctx, next, child, depth+1)
	if err != nil {
		return 0, err
	}
	s.tree.record(child, v)
	return -v, nil
}

// expand evaluates a leaf and attaches its children. The tree is only changed
// after the oracle has answered.
func (s *Search) expand(ctx context.Context, state *game.State, id NodeID) (float32, error) {
	actions := s.rules.LegalActions(state)
	if len(actions) == 0 {
		if err := s.tree.Expand(id, nil, nil); err != nil {
			return 0, err
		}
		return drawValue, nil
	}

	pred, err := s.predictor.Predict(ctx, state)
	if err != nil {
		return 0, fmt.Errorf("evaluate node %d: %w", id, err)
	}
	if len(pred.Policy) != state.NumCells() {
		return 0, fmt.Errorf("evaluate node %d: policy has %d entries, want %d", id, len(pred.Policy), state.NumCells())
	}

	priors := normalizePriors(pred.Policy, actions)
	if s.config.AddNoise {
		mixNoise(priors, s.config.DirichletAlpha, s.config.NoiseEps, s.src)
	}
	if err := s.tree.Expand(id, actions, priors); err != nil {
		return 0, err
	}

	value := pred.Value
	if value > 1 {
		value = 1
	} else if value < -1 {
		value = -1
	}
	return -value, nil
}

// RunSimulations runs count simulations from the root against state, which
// must be the root position. It returns the number of completed simulations.
// ctx is checked between simulations.
func (s *Search) RunSimulations(ctx context.Context, state *game.State, count int) (int, error) {
	root := s.tree.Root()
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		default:
		}

		v, err := s.simulate(ctx, state, root, 0)
		if err != nil {
			return i, err
		}
		s.tree.record(root, v)
	}
	return count, nil
}

// SearchStats describes the most recent ChooseMove.
type SearchStats struct {
	Simulations int
	Duration    time.Duration
	TreeSize    int
	MaxDepth    int
	Reused      bool
	RootVisits  int
}
