// Package selfplay plays complete games with the search on both sides and
// turns them into training rows.
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
	"github.com/rs/zerolog"
	"lukechampine.com/frand"
)

const DefaultSource = "selfplay"

type GameResult struct {
	GameID string
	Winner game.Player
	Plies  int
}

// InProgressGame is a resumable self-play game snapshot. Values are only
// assigned once the game completes.
type InProgressGame struct {
	GameID   string              `json:"game_id"`
	State    *game.State         `json:"state"`
	Rows     []store.TrainingRow `json:"rows"`
	RNGSeed  uint64              `json:"rng_seed"`
	PausedAt int32               `json:"paused_at"`
}

type PlayGameOutcome struct {
	Completed  bool
	Rows       []store.TrainingRow
	Result     GameResult
	Checkpoint *InProgressGame
}

type GameSettings struct {
	BoardSize int
	Opening   rules.OpeningSettings
	Source    string
	ModelPath string
	// Seed for the opening. 0 picks a random seed.
	Seed uint64
}

type PlayGameOptions struct {
	Resume        *InProgressGame
	StopRequested func() bool
	// OnMove is called after every committed move.
	OnMove func(ply int, action game.Action)
	Log    zerolog.Logger
}

// PlayGame plays one game to the end with s choosing moves for both players.
// If ctx ends or StopRequested returns true between moves, the game is
// returned as a checkpoint instead.
func PlayGame(ctx context.Context, workerID int, s *mcts.Search, g rules.Gomoku, settings GameSettings, opts PlayGameOptions) (PlayGameOutcome, error) {
	stopRequested := opts.StopRequested
	if stopRequested == nil {
		stopRequested = func() bool { return false }
	}
	log := opts.Log
	source := settings.Source
	if source == "" {
		source = DefaultSource
	}

	var state *game.State
	var gameID string
	var seed uint64
	rows := make([]store.TrainingRow, 0, settings.BoardSize*settings.BoardSize)

	if r := opts.Resume; r != nil && r.State != nil && r.GameID != "" {
		gameID = r.GameID
		state = r.State.Clone()
		seed = r.RNGSeed
		rows = append(rows, r.Rows...)
		log.Info().Str("game", gameID).Int32("ply", r.PausedAt).Msg("resuming game")
	} else {
		seed = settings.Seed
		if seed == 0 {
			seed = frand.Uint64n(1<<63) + 1
		}
		rng := rand.New(rand.NewPCG(seed, uint64(workerID)))
		state = g.ApplyOpening(game.NewState(settings.BoardSize), rng, settings.Opening)
		gameID = fmt.Sprintf("selfplay_%d_%d", time.Now().UnixNano(), workerID)
	}
	s.Reset()

	checkpoint := func() PlayGameOutcome {
		return PlayGameOutcome{
			Result: GameResult{GameID: gameID, Plies: state.Ply()},
			Checkpoint: &InProgressGame{
				GameID:   gameID,
				State:    state.Clone(),
				Rows:     append([]store.TrainingRow(nil), rows...),
				RNGSeed:  seed,
				PausedAt: int32(state.Ply()),
			},
		}
	}

	for !g.IsGameOver(state) {
		if ctx.Err() != nil || stopRequested() {
			return checkpoint(), nil
		}

		action, pi, err := s.ChooseMove(ctx, state)
		if errors.Is(err, mcts.ErrNoLegalMoves) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return checkpoint(), nil
			}
			return PlayGameOutcome{Result: GameResult{GameID: gameID, Plies: state.Ply()}}, fmt.Errorf("game %s ply %d: %w", gameID, state.Ply(), err)
		}

		stats := s.Stats()
		rows = append(rows, store.TrainingRow{
			GameID:       gameID,
			Ply:          int32(state.Ply()),
			BoardSize:    int32(state.Size),
			Cells:        store.EncodeCells(state),
			ToMove:       int32(state.ToMove),
			Action:       int32(action),
			Policy:       pi,
			Source:       source,
			ModelPath:    settings.ModelPath,
			Sims:         int32(stats.Simulations),
			MCTSRootJSON: []byte(s.RootSummaryJSON()),
		})

		next, err := g.ApplyMove(state, action, state.ToMove)
		if err != nil {
			return PlayGameOutcome{Result: GameResult{GameID: gameID, Plies: state.Ply()}}, fmt.Errorf("game %s: %w", gameID, err)
		}
		if err := s.Advance(action); err != nil {
			return PlayGameOutcome{Result: GameResult{GameID: gameID, Plies: state.Ply()}}, fmt.Errorf("game %s: %w", gameID, err)
		}

		log.Debug().
			Int("worker", workerID).
			Str("game", gameID).
			Int("ply", state.Ply()).
			Stringer("player", state.ToMove).
			Int("action", int(action)).
			Int("sims", stats.Simulations).
			Bool("reused", stats.Reused).
			Msg("move")

		if opts.OnMove != nil {
			opts.OnMove(state.Ply(), action)
		}
		state = next
	}

	winner := g.Winner(state)
	AssignValues(rows, winner)

	return PlayGameOutcome{
		Completed: true,
		Rows:      rows,
		Result:    GameResult{GameID: gameID, Winner: winner, Plies: state.Ply()},
	}, nil
}

// AssignValues sets every row's value to the final outcome from the
// perspective of the player to move in that row.
func AssignValues(rows []store.TrainingRow, winner game.Player) {
	for i := range rows {
		switch {
		case winner == game.Empty:
			rows[i].Value = 0
		case game.Player(rows[i].ToMove) == winner:
			rows[i].Value = 1
		default:
			rows[i].Value = -1
		}
	}
}
