package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/rules"
)

// match is one human-vs-engine game on the terminal.
type match struct {
	search *mcts.Search
	rules  rules.Gomoku
	human  game.Player
	in     *bufio.Scanner
	out    io.Writer
}

// run plays from an empty board until the game ends or the human quits, and
// returns the winner (game.Empty for a draw).
func (m *match) run(ctx context.Context, size int) (game.Player, error) {
	state := game.NewState(size)
	m.search.Reset()

	for !m.rules.IsGameOver(state) {
		fmt.Fprint(m.out, "\n"+renderBoard(state))

		var action game.Action
		var err error
		if state.ToMove == m.human {
			action, err = m.humanMove(state)
		} else {
			action, err = m.engineMove(ctx, state)
		}
		if errors.Is(err, mcts.ErrNoLegalMoves) {
			break
		}
		if err != nil {
			return game.Empty, err
		}

		next, err := m.rules.ApplyMove(state, action, state.ToMove)
		if err != nil {
			return game.Empty, err
		}
		if err := m.search.Advance(action); err != nil {
			return game.Empty, err
		}
		state = next
	}

	fmt.Fprint(m.out, "\n"+renderBoard(state))
	winner := m.rules.Winner(state)
	switch winner {
	case game.Empty:
		fmt.Fprintln(m.out, "Draw.")
	case m.human:
		fmt.Fprintln(m.out, "You win.")
	default:
		fmt.Fprintln(m.out, "Engine wins.")
	}
	return winner, nil
}

func (m *match) humanMove(state *game.State) (game.Action, error) {
	for {
		fmt.Fprintf(m.out, "%s to move (row col, q to quit): ", state.ToMove)
		if !m.in.Scan() {
			if err := m.in.Err(); err != nil {
				return game.NoAction, err
			}
			return game.NoAction, errQuit
		}
		action, err := parseMove(m.in.Text(), state.Size)
		if errors.Is(err, errQuit) {
			return game.NoAction, err
		}
		if err != nil {
			fmt.Fprintln(m.out, err)
			continue
		}
		if _, err := m.rules.ApplyMove(state, action, state.ToMove); err != nil {
			fmt.Fprintln(m.out, err)
			continue
		}
		fmt.Fprintf(m.out, "you play %s\n", formatMove(action, state.Size))
		return action, nil
	}
}

func (m *match) engineMove(ctx context.Context, state *game.State) (game.Action, error) {
	action, _, err := m.search.ChooseMove(ctx, state)
	if err != nil {
		return game.NoAction, err
	}
	st := m.search.Stats()
	fmt.Fprintf(m.out, "engine plays %s (%d sims, %d nodes", formatMove(action, state.Size), st.Simulations, st.TreeSize)
	if top := m.search.RootSummary(); len(top) > 0 {
		fmt.Fprintf(m.out, ", q %+.2f", top[0].Q)
	}
	fmt.Fprintln(m.out, ")")
	return action, nil
}
