package mcts

import (
	"context"
	"testing"
	"time"

	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/rules"
	"github.com/stretchr/testify/require"
)

func TestChooseMoveEndToEnd(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(200), &uniformPredictor{})
	state := game.NewState(5)

	action, pi, err := s.ChooseMove(context.Background(), state)
	require.NoError(t, err)
	require.Contains(t, rules.Gomoku{}.LegalActions(state), action)
	require.Len(t, pi, 25)

	var sum float32
	for _, p := range pi {
		sum += p
	}
	require.InDelta(t, 1, sum, 1e-5)

	stats := s.Stats()
	require.Equal(t, 200, stats.Simulations)
	require.Equal(t, 200, stats.RootVisits)
	require.False(t, stats.Reused)
	require.Equal(t, s.tree.Len(), stats.TreeSize)
	checkVisitInvariant(t, s.tree)
}

func TestChooseMoveFindsWinInOne(t *testing.T) {
	s := newTestSearch(t, 7, testConfig(400), &uniformPredictor{})
	state := mustParse(t,
		"X X X X . . .",
		"O O O O . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
	)

	action, _, err := s.ChooseMove(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, game.Action(4), action)

	root := s.tree.Root()
	win, _ := s.tree.Child(root, 4)
	for _, c := range s.tree.Children(root) {
		require.LessOrEqual(t, s.tree.Visits(c), s.tree.Visits(win))
	}
	summary := s.RootSummary()
	require.NotEmpty(t, summary)
	require.Equal(t, 4, summary[0].Action)
	require.Contains(t, s.RootSummaryJSON(), `"a":4`)
}

func TestChooseMoveReusesTreeAfterAdvance(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(100), &uniformPredictor{})
	g := rules.Gomoku{}
	state := game.NewState(5)

	action, _, err := s.ChooseMove(context.Background(), state)
	require.NoError(t, err)
	child, ok := s.tree.Child(s.tree.Root(), action)
	require.True(t, ok)
	carried := s.tree.Visits(child)

	require.NoError(t, s.Advance(action))
	require.Equal(t, carried, s.tree.Visits(s.tree.Root()), "statistics survive promotion")
	require.True(t, s.tree.IsRoot(s.tree.Root()))

	next, err := g.ApplyMove(state, action, game.Black)
	require.NoError(t, err)
	_, _, err = s.ChooseMove(context.Background(), next)
	require.NoError(t, err)
	require.True(t, s.Stats().Reused)
	require.Equal(t, carried+100, s.tree.Visits(s.tree.Root()))
	checkVisitInvariant(t, s.tree)
}

func TestAdvanceUnknownActionDropsTree(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(3), &uniformPredictor{})
	state := game.NewState(5)
	_, _, err := s.ChooseMove(context.Background(), state)
	require.NoError(t, err)

	// Three simulations never reach action 24, so its child comes up bare.
	require.NoError(t, s.Advance(24))
	require.Equal(t, 1, s.tree.Len())
	require.Equal(t, game.White, s.tree.ToMove(s.tree.Root()))

	require.Error(t, s.Advance(24), "cell already occupied")
	require.Equal(t, 1, s.tree.Len())
}

func TestAdvanceOnFreshHandleChecksLegality(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(10), &uniformPredictor{})

	err := s.Advance(999)
	require.ErrorIs(t, err, rules.ErrIllegalMove)
	require.Equal(t, game.Black, s.tree.ToMove(s.tree.Root()))

	// The opponent opens in the centre; the engine answers as White.
	require.NoError(t, s.Advance(12))
	require.Equal(t, game.White, s.tree.ToMove(s.tree.Root()))
	require.ErrorIs(t, s.Advance(12), rules.ErrIllegalMove)

	s.Reset()
	require.NoError(t, s.Advance(12))
	next, err := rules.Gomoku{}.ApplyMove(game.NewState(5), 12, game.Black)
	require.NoError(t, err)
	action, _, err := s.ChooseMove(context.Background(), next)
	require.NoError(t, err)
	require.NotEqual(t, game.Action(12), action)
	require.False(t, s.Stats().Reused)
	require.Equal(t, game.White, s.tree.ToMove(s.tree.Root()))
}

func TestChooseMoveOnDifferentPositionStartsFresh(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(20), &uniformPredictor{})
	_, _, err := s.ChooseMove(context.Background(), game.NewState(5))
	require.NoError(t, err)

	other := mustParse(t,
		"X . . . .",
		". . . . .",
		". . O . .",
		". . . . .",
		". . . . .",
	)
	_, _, err = s.ChooseMove(context.Background(), other)
	require.NoError(t, err)
	require.False(t, s.Stats().Reused)
	require.Equal(t, 20, s.tree.Visits(s.tree.Root()))
}

func TestChooseMoveGameOver(t *testing.T) {
	s := newTestSearch(t, 7, testConfig(10), &uniformPredictor{})
	g := rules.Gomoku{}
	state := mustParse(t,
		"X X X X . . .",
		"O O O O . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
		". . . . . . .",
	)
	won, err := g.ApplyMove(state, 4, game.Black)
	require.NoError(t, err)

	_, _, err = s.ChooseMove(context.Background(), won)
	require.ErrorIs(t, err, ErrGameOver)
}

func TestChooseMoveFullBoard(t *testing.T) {
	s := newTestSearch(t, 3, testConfig(10), &uniformPredictor{})
	state := mustParse(t,
		"X O X",
		"X O O",
		"O X X",
	)
	_, _, err := s.ChooseMove(context.Background(), state)
	require.ErrorIs(t, err, ErrNoLegalMoves)
}

func TestChooseMoveSizeMismatch(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(10), &uniformPredictor{})
	_, _, err := s.ChooseMove(context.Background(), game.NewState(7))
	require.Error(t, err)
}

// slowPredictor sleeps on every evaluation.
type slowPredictor struct {
	uniformPredictor
	delay time.Duration
}

func (p *slowPredictor) Predict(ctx context.Context, state *game.State) (Prediction, error) {
	time.Sleep(p.delay)
	return p.uniformPredictor.Predict(ctx, state)
}

func TestChooseMoveTimeBudget(t *testing.T) {
	cfg := testConfig(1_000_000)
	cfg.MoveTime = 50 * time.Millisecond
	s := newTestSearch(t, 5, cfg, &slowPredictor{delay: time.Millisecond})

	start := time.Now()
	action, pi, err := s.ChooseMove(context.Background(), game.NewState(5))
	require.NoError(t, err, "running out of move time is not an error")
	require.Less(t, time.Since(start), 2*time.Second)
	require.NotEqual(t, game.NoAction, action)
	require.NotNil(t, pi)
	require.Less(t, s.Stats().Simulations, 1_000_000)
}

func TestChooseMoveCallerCancelled(t *testing.T) {
	s := newTestSearch(t, 5, testConfig(100), &uniformPredictor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.ChooseMove(ctx, game.NewState(5))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSeededSearchIsReproducible(t *testing.T) {
	cfg := testConfig(150)
	cfg.Strategy = Stochastic
	cfg.AddNoise = true
	cfg.Seed = 42

	run := func() (game.Action, []float32, []ChildSummary) {
		s := newTestSearch(t, 5, cfg, &uniformPredictor{})
		action, pi, err := s.ChooseMove(context.Background(), game.NewState(5))
		require.NoError(t, err)
		return action, pi, s.RootSummary()
	}

	a1, pi1, sum1 := run()
	a2, pi2, sum2 := run()
	require.Equal(t, a1, a2)
	require.Equal(t, pi1, pi2)
	require.Equal(t, sum1, sum2)
}

func TestStrategySwitchesAtPly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrategyChangePly = 4
	require.Equal(t, Stochastic, cfg.strategyAt(3))
	require.Equal(t, Deterministic, cfg.strategyAt(4))

	cfg.StrategyChangePly = 0
	require.Equal(t, Stochastic, cfg.strategyAt(100))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Simulations = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.AddNoise = true
	bad.DirichletAlpha = 0
	require.Error(t, bad.Validate())

	_, err := NewSearch(5, bad, rules.Gomoku{}, &uniformPredictor{})
	require.Error(t, err)

	s, err := ParseStrategy("Deterministic")
	require.NoError(t, err)
	require.Equal(t, Deterministic, s)
	_, err = ParseStrategy("coin flip")
	require.Error(t, err)
}
