// Package rules implements five-in-a-row on a square board.
//
// Gomoku satisfies the mcts.GameRules interface: the search core only sees
// LegalActions, ApplyMove and IsWinningMove and knows nothing else about the game.
package rules

import (
	"errors"
	"fmt"

	"github.com/brensch/gomoku/game"
)

// DefaultWinLength is the classic five-in-a-row line length.
const DefaultWinLength = 5

// ErrIllegalMove is matched by every *IllegalMoveError.
var ErrIllegalMove = errors.New("illegal move")

// IllegalMoveError reports an attempted move on an occupied or out-of-range cell.
type IllegalMoveError struct {
	Action game.Action
	Player game.Player
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %d by %s: %s", e.Action, e.Player, e.Reason)
}

func (e *IllegalMoveError) Is(target error) bool {
	return target == ErrIllegalMove
}

// Gomoku is the rule set. The zero value plays five-in-a-row.
type Gomoku struct {
	WinLength int
}

func (g Gomoku) winLength() int {
	if g.WinLength <= 0 {
		return DefaultWinLength
	}
	return g.WinLength
}

// LegalActions returns every empty cell in ascending index order.
func (g Gomoku) LegalActions(state *game.State) []game.Action {
	if state == nil {
		return nil
	}
	moves := make([]game.Action, 0, len(state.Cells)-state.Ply())
	for i, c := range state.Cells {
		if c == game.Empty {
			moves = append(moves, game.Action(i))
		}
	}
	return moves
}

// ApplyMove places a stone for player and returns the next state.
// The input state is never modified.
func (g Gomoku) ApplyMove(state *game.State, action game.Action, player game.Player) (*game.State, error) {
	if !state.InBounds(action) {
		return nil, &IllegalMoveError{Action: action, Player: player, Reason: "out of range"}
	}
	if state.Cells[action] != game.Empty {
		return nil, &IllegalMoveError{Action: action, Player: player, Reason: "cell occupied"}
	}
	if player != game.Black && player != game.White {
		return nil, &IllegalMoveError{Action: action, Player: player, Reason: "no such player"}
	}

	next := state.Clone()
	next.Cells[action] = player
	next.History = append(next.History, game.Move{Action: action, Player: player})
	next.ToMove = player.Opponent()
	return next, nil
}

// IsWinningMove reports whether the stone at action completes a line of
// WinLength or more for its owner. state must already contain the stone.
func (g Gomoku) IsWinningMove(state *game.State, action game.Action) bool {
	if state == nil || !state.InBounds(action) {
		return false
	}
	player := state.Cells[action]
	if player == game.Empty {
		return false
	}

	p := action.Point(state.Size)
	row, col := int(p.Row), int(p.Col)
	need := g.winLength()

	// horizontal, vertical, diagonal \, diagonal /
	directions := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range directions {
		count := 1
		for r, c := row+d[0], col+d[1]; state.At(r, c) == player; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; state.At(r, c) == player; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= need {
			return true
		}
	}
	return false
}

// IsFull reports whether no empty cell remains.
func (g Gomoku) IsFull(state *game.State) bool {
	return state.Ply() >= len(state.Cells)
}

// Winner returns the side whose last move completed a line, or Empty.
func (g Gomoku) Winner(state *game.State) game.Player {
	last := state.LastMove()
	if last == game.NoAction {
		return game.Empty
	}
	if g.IsWinningMove(state, last) {
		return state.Cells[last]
	}
	return game.Empty
}

// IsGameOver reports a win by the last move or a full board.
func (g Gomoku) IsGameOver(state *game.State) bool {
	return g.Winner(state) != game.Empty || g.IsFull(state)
}

// Result is the final outcome from player's perspective: +1 win, -1 loss, 0 draw or ongoing.
func (g Gomoku) Result(state *game.State, player game.Player) float32 {
	switch g.Winner(state) {
	case game.Empty:
		return 0
	case player:
		return 1
	default:
		return -1
	}
}
