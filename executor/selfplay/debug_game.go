package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/rules"
	"github.com/brensch/gomoku/store"
	"lukechampine.com/frand"
)

// DebugGameResult holds a game played with full tree capture.
type DebugGameResult struct {
	GameID    string
	ModelPath string
	Rows      []store.DebugNodeRow
	Winner    game.Player
	Plies     int
	Final     *game.State
}

// DebugProgress is passed to the progress callback after each move.
type DebugProgress struct {
	Ply        int
	Player     game.Player
	Action     game.Action
	RootVisits int
	TreeSize   int
	Nodes      int
	// State is the position after the move.
	State *game.State
}

// PlayDebugGame plays one game like PlayGame but records the visited part of
// the search tree before every move. maxDepth limits how deep below the root
// nodes are captured; 0 captures the whole tree.
func PlayDebugGame(ctx context.Context, s *mcts.Search, g rules.Gomoku, settings GameSettings, maxDepth int, onProgress func(DebugProgress)) (*DebugGameResult, error) {
	seed := settings.Seed
	if seed == 0 {
		seed = frand.Uint64n(1<<63) + 1
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	state := g.ApplyOpening(game.NewState(settings.BoardSize), rng, settings.Opening)
	gameID := fmt.Sprintf("debug_%d", time.Now().UnixNano())
	s.Reset()

	result := &DebugGameResult{
		GameID:    gameID,
		ModelPath: settings.ModelPath,
		Rows:      make([]store.DebugNodeRow, 0, 1024),
	}

	for !g.IsGameOver(state) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		action, _, err := s.ChooseMove(ctx, state)
		if errors.Is(err, mcts.ErrNoLegalMoves) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("debug game ply %d: %w", state.Ply(), err)
		}

		tree := s.Tree()
		nodes := CaptureTree(tree, gameID, state.Ply(), action, maxDepth)
		result.Rows = append(result.Rows, nodes...)

		next, err := g.ApplyMove(state, action, state.ToMove)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(DebugProgress{
				Ply:        state.Ply(),
				Player:     state.ToMove,
				Action:     action,
				RootVisits: tree.Visits(tree.Root()),
				TreeSize:   tree.Len(),
				Nodes:      len(nodes),
				State:      next,
			})
		}
		if err := s.Advance(action); err != nil {
			return nil, err
		}
		state = next
	}

	result.Winner = g.Winner(state)
	result.Plies = state.Ply()
	result.Final = state
	return result, nil
}

// CaptureTree flattens the visited nodes under the root in breadth-first
// order. The root row has Action -1 and the played child is marked Chosen.
func CaptureTree(t *mcts.Tree, gameID string, ply int, chosen game.Action, maxDepth int) []store.DebugNodeRow {
	type item struct {
		id     mcts.NodeID
		action game.Action
		depth  int
	}

	root := t.Root()
	rows := make([]store.DebugNodeRow, 0, 64)
	queue := []item{{id: root, action: game.NoAction}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		isChosen := it.depth == 1 && it.action == chosen
		rows = append(rows, store.DebugNodeRow{
			GameID:   gameID,
			Ply:      int32(ply),
			NodeID:   int32(it.id),
			ParentID: int32(t.Parent(it.id)),
			Depth:    int32(it.depth),
			Action:   int32(it.action),
			ToMove:   int32(t.ToMove(it.id)),
			Visits:   int32(t.Visits(it.id)),
			Q:        t.Value(it.id),
			Prior:    t.Prior(it.id),
			Chosen:   isChosen,
		})

		if maxDepth > 0 && it.depth >= maxDepth {
			continue
		}
		actions := t.Actions(it.id)
		for i, child := range t.Children(it.id) {
			if t.Visits(child) == 0 {
				continue
			}
			queue = append(queue, item{id: child, action: actions[i], depth: it.depth + 1})
		}
	}
	return rows
}

// WriteDebugGame writes a captured game to outDir.
func WriteDebugGame(outDir string, res *DebugGameResult, boardSize int, cfg mcts.Config) (string, error) {
	return store.WriteDebugGameParquet(outDir, res.GameID, res.Rows, store.DebugGameMeta{
		GameID:    res.GameID,
		ModelPath: res.ModelPath,
		CreatedNs: time.Now().UnixNano(),
		Plies:     int32(res.Plies),
		BoardSize: int32(boardSize),
		Sims:      int32(cfg.Simulations),
		Cpuct:     cfg.Cpuct,
		Winner:    res.Winner.String(),
	})
}
