package mcts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brensch/gomoku/game"
)

// ChooseMove searches state and returns the chosen move together with the
// visit distribution over all cells. The tree from the previous move is kept
// when state is the position at its root.
func (s *Search) ChooseMove(ctx context.Context, state *game.State) (game.Action, []float32, error) {
	if state.Size != s.size {
		return game.NoAction, nil, fmt.Errorf("board size %d does not match search size %d", state.Size, s.size)
	}
	if last := state.LastMove(); last != game.NoAction && s.rules.IsWinningMove(state, last) {
		return game.NoAction, nil, ErrGameOver
	}

	reused := s.rootState.Equal(state) && s.tree.Visits(s.tree.Root()) > 0
	if !reused {
		s.tree.Reset(state.ToMove)
		s.rootState = state.Clone()
	}

	searchCtx := ctx
	if s.config.MoveTime > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.config.MoveTime)
		defer cancel()
	}

	start := time.Now()
	s.maxDepth = 0
	n, err := s.RunSimulations(searchCtx, s.rootState, s.config.Simulations)
	elapsed := time.Since(start)

	s.stats = SearchStats{
		Simulations: n,
		Duration:    elapsed,
		TreeSize:    s.tree.Len(),
		MaxDepth:    s.maxDepth,
		Reused:      reused,
		RootVisits:  s.tree.Visits(s.tree.Root()),
	}

	if err != nil {
		// Running out of move time is fine once the root has children.
		budgetSpent := ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
		if !budgetSpent || s.tree.IsLeaf(s.tree.Root()) {
			var aee *AlreadyExpandedError
			if errors.As(err, &aee) {
				s.log.Error().Err(err).Int("node", int(aee.Node)).Int("depth", aee.Depth).Msg("tree invariant violated")
			}
			return game.NoAction, nil, fmt.Errorf("search after %d simulations: %w", n, err)
		}
	}

	strategy := s.config.strategyAt(state.Ply())
	action, _, pi, err := ChooseMove(s.tree, state.NumCells(), s.config.Temperature, strategy, s.rng)
	if err != nil {
		return game.NoAction, nil, err
	}

	s.log.Debug().
		Int("ply", state.Ply()).
		Int("action", int(action)).
		Stringer("strategy", strategy).
		Int("sims", n).
		Dur("elapsed", elapsed).
		Int("nodes", s.stats.TreeSize).
		Int("max_depth", s.maxDepth).
		Bool("reused", reused).
		Msg("move chosen")

	return action, pi, nil
}

// Advance commits action, played by whoever is to move at the root, and makes
// its child the new root. A move the tree does not know about drops the tree.
func (s *Search) Advance(action game.Action) error {
	next, err := s.rules.ApplyMove(s.rootState, action, s.rootState.ToMove)
	if err != nil {
		s.Reset()
		return fmt.Errorf("advance: %w", err)
	}

	if child, ok := s.tree.Child(s.tree.Root(), action); ok {
		s.tree.Promote(child)
	} else {
		s.tree.Reset(next.ToMove)
	}
	s.rootState = next
	return nil
}

// Reset discards the tree and roots it at the empty board.
func (s *Search) Reset() {
	s.tree.Reset(game.Black)
	s.rootState = game.NewState(s.size)
}

func (s *Search) Stats() SearchStats { return s.stats }

// ChildSummary is a compact view of one root child.
type ChildSummary struct {
	Action int     `json:"a"`
	Visits int     `json:"n"`
	Q      float32 `json:"q"`
	Prior  float32 `json:"p"`
}

// RootSummary lists the visited root children, most visited first.
func (s *Search) RootSummary() []ChildSummary {
	root := s.tree.Root()
	out := make([]ChildSummary, 0, len(s.tree.Children(root)))
	for i, c := range s.tree.Children(root) {
		if s.tree.Visits(c) == 0 {
			continue
		}
		out = append(out, ChildSummary{
			Action: int(s.tree.Actions(root)[i]),
			Visits: s.tree.Visits(c),
			Q:      s.tree.Value(c),
			Prior:  s.tree.Prior(c),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Visits > out[j].Visits })
	return out
}

// RootSummaryJSON is RootSummary encoded for storage alongside training rows.
func (s *Search) RootSummaryJSON() string {
	b, err := json.Marshal(s.RootSummary())
	if err != nil {
		return ""
	}
	return string(b)
}
