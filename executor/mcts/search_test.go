package mcts

import (
	"context"
	"errors"
	"testing"

	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/rules"
	"github.com/stretchr/testify/require"
)

// uniformPredictor returns flat priors over every cell and a constant value.
type uniformPredictor struct {
	value float32
	calls int
}

func (u *uniformPredictor) Predict(_ context.Context, state *game.State) (Prediction, error) {
	u.calls++
	policy := make([]float32, state.NumCells())
	for i := range policy {
		policy[i] = 1 / float32(len(policy))
	}
	return Prediction{Policy: policy, Value: u.value}, nil
}

// failingPredictor succeeds for the first ok calls and then fails.
type failingPredictor struct {
	ok    int
	calls int
}

var errOracleDown = errors.New("oracle down")

func (f *failingPredictor) Predict(ctx context.Context, state *game.State) (Prediction, error) {
	f.calls++
	if f.calls > f.ok {
		return Prediction{}, errOracleDown
	}
	return (&uniformPredictor{}).Predict(ctx, state)
}

func newTestSearch(t *testing.T, size int, cfg Config, p Predictor) *Search {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	s, err := NewSearch(size, cfg, rules.Gomoku{}, p)
	require.NoError(t, err)
	return s
}

func testConfig(sims int) Config {
	cfg := DefaultConfig()
	cfg.Cpuct = 1
	cfg.Simulations = sims
	cfg.Strategy = Deterministic
	return cfg
}

func mustParse(t *testing.T, rows ...string) *game.State {
	t.Helper()
	s, err := game.ParseBoard(rows...)
	require.NoError(t, err)
	return s
}

// checkVisitInvariant walks the tree and checks that every expanded node with
// children has exactly one more visit than its children combined, and that
// the player to move flips from parent to child.
func checkVisitInvariant(t *testing.T, tr *Tree) {
	t.Helper()
	for id := NodeID(0); int(id) < tr.Len(); id++ {
		if tr.IsLeaf(id) {
			continue
		}
		sum := 0
		for _, c := range tr.Children(id) {
			sum += tr.Visits(c)
			require.NotEqual(t, tr.ToMove(id), tr.ToMove(c), "child %d of node %d keeps the player to move", c, id)
		}
		require.Equal(t, sum+1, tr.Visits(id), "node %d at depth %d", id, tr.Depth(id))
	}
}

func TestRunSimulationsVisitConservation(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(1), &uniformPredictor{})
	state := game.NewState(5)
	s.tree.Reset(state.ToMove)

	n, err := s.RunSimulations(context.Background(), state, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, s.tree.IsExpanded(s.tree.Root()))

	const m = 150
	n, err = s.RunSimulations(context.Background(), state, m)
	require.NoError(t, err)
	require.Equal(t, m, n)

	sum := 0
	for _, c := range s.tree.Children(s.tree.Root()) {
		sum += s.tree.Visits(c)
	}
	require.Equal(t, m, sum)
	require.Equal(t, m+1, s.tree.Visits(s.tree.Root()))
	checkVisitInvariant(t, s.tree)
}

func TestRunSimulationsDoesNotMutateState(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(1), &uniformPredictor{})
	state := mustParse(t,
		". . . . .",
		". X . . .",
		". . O . .",
		". . . . .",
		". . . . .",
	)
	before := state.Clone()

	_, err := s.RunSimulations(context.Background(), state, 50)
	require.NoError(t, err)
	require.True(t, before.Equal(state))
}

func TestExpansionUsesLegalPriorsOnly(t *testing.T) {
	p := &uniformPredictor{value: 0.25}
	s := newTestSearch(t, 3, testConfig(1), p)
	state := mustParse(t,
		"X . .",
		". O .",
		". . .",
	)
	s.tree.Reset(state.ToMove)

	_, err := s.RunSimulations(context.Background(), state, 1)
	require.NoError(t, err)

	root := s.tree.Root()
	require.Equal(t, []game.Action{1, 2, 3, 5, 6, 7, 8}, s.tree.Actions(root))
	var sum float32
	for _, c := range s.tree.Children(root) {
		require.InDelta(t, 1.0/7, s.tree.Prior(c), 1e-6)
		sum += s.tree.Prior(c)
	}
	require.InDelta(t, 1, sum, 1e-5)
	// The root value is stored from the perspective of the player who moved
	// into it, so a leaf value of 0.25 for the mover appears negated.
	require.InDelta(t, -0.25, s.tree.Value(root), 1e-6)
}

func TestZeroPolicyFallsBackToUniform(t *testing.T) {
	priors := normalizePriors(make([]float32, 9), []game.Action{0, 4, 8})
	require.InDeltaSlice(t, []float32{1.0 / 3, 1.0 / 3, 1.0 / 3}, priors, 1e-6)

	priors = normalizePriors([]float32{0, 2, 0, 6}, []game.Action{1, 3})
	require.InDeltaSlice(t, []float32{0.25, 0.75}, priors, 1e-6)
}

func TestTerminalWinIsNotExpanded(t *testing.T) {
	p := &uniformPredictor{}
	s := newTestSearch(t, 7, testConfig(1), p)
	state := mustParse(t,
		"X X X X . . .",
		"O O O O . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
	)
	s.tree.Reset(state.ToMove)
	_, err := s.RunSimulations(context.Background(), state, 2)
	require.NoError(t, err)

	win, ok := s.tree.Child(s.tree.Root(), 4)
	require.True(t, ok)
	require.Equal(t, 1, s.tree.Visits(win), "first child in order is visited second")
	require.Equal(t, float32(1), s.tree.Value(win))
	require.False(t, s.tree.IsExpanded(win))
	require.Equal(t, 1, p.calls, "terminal nodes never reach the oracle")
}

func TestFullBoardIsDraw(t *testing.T) {
	p := &uniformPredictor{value: 0.9}
	s := newTestSearch(t, 3, testConfig(1), p)
	state := mustParse(t,
		"X O X",
		"X O O",
		"O X X",
	)
	s.tree.Reset(state.ToMove)
	_, err := s.RunSimulations(context.Background(), state, 3)
	require.NoError(t, err)

	root := s.tree.Root()
	require.True(t, s.tree.IsExpanded(root))
	require.True(t, s.tree.IsLeaf(root))
	require.Equal(t, 3, s.tree.Visits(root))
	require.Zero(t, s.tree.Value(root))
	require.Zero(t, p.calls)
}

func TestOracleErrorLeavesTreeUntouched(t *testing.T) {
	p := &failingPredictor{ok: 10}
	s := newTestSearch(t, 5, testConfig(1), p)
	state := game.NewState(5)
	s.tree.Reset(state.ToMove)

	n, err := s.RunSimulations(context.Background(), state, 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	nodes := s.tree.Len()
	visits := s.tree.Visits(s.tree.Root())

	n, err = s.RunSimulations(context.Background(), state, 5)
	require.ErrorIs(t, err, errOracleDown)
	require.Zero(t, n)
	require.Equal(t, nodes, s.tree.Len())
	require.Equal(t, visits, s.tree.Visits(s.tree.Root()))
	checkVisitInvariant(t, s.tree)
}

func TestRunSimulationsCancelled(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(1), &uniformPredictor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := s.RunSimulations(ctx, game.NewState(5), 100)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)
}

func TestNoiseKeepsPriorsNormalised(t *testing.T) {
	cfg := testConfig(1)
	cfg.AddNoise = true
	s := newTestSearch(t, 5, cfg, &uniformPredictor{})
	state := game.NewState(5)
	s.tree.Reset(state.ToMove)

	_, err := s.RunSimulations(context.Background(), state, 1)
	require.NoError(t, err)

	var sum float32
	varied := false
	for _, c := range s.tree.Children(s.tree.Root()) {
		p := s.tree.Prior(c)
		require.GreaterOrEqual(t, p, float32(0))
		sum += p
		if p < 0.03 || p > 0.05 {
			varied = true
		}
	}
	require.InDelta(t, 1, sum, 1e-4)
	require.True(t, varied, "noise should move at least one prior away from 1/25")
}

func TestNoisySearchKeepsTreeInvariants(t *testing.T) {
	cfg := testConfig(1)
	cfg.AddNoise = true
	s := newTestSearch(t, 7, cfg, &uniformPredictor{})
	state := game.NewState(7)
	s.tree.Reset(state.ToMove)

	n, err := s.RunSimulations(context.Background(), state, 2000)
	require.NoError(t, err)
	require.Equal(t, 2000, n)
	require.GreaterOrEqual(t, s.maxDepth, 2)
	checkVisitInvariant(t, s.tree)
}
