// Package game defines the core board types for five-in-a-row.
//
// These types represent the minimal state needed for rules evaluation and
// oracle inference. The state is designed to be cheaply clonable for MCTS
// tree exploration: a flat cell slice plus the move history.
package game

import "fmt"

// Player identifies a side. Black always moves first.
type Player int8

const (
	Empty Player = 0
	Black Player = 1
	White Player = 2
)

// Opponent returns the other side. Empty has no opponent and maps to itself.
func (p Player) Opponent() Player {
	switch p {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

func (p Player) String() string {
	switch p {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Action is a cell index: row*size + col.
type Action int32

// NoAction marks the absence of a move (the root of a fresh game).
const NoAction Action = -1

// Point is a board coordinate. (0,0) is the top-left cell.
type Point struct {
	Row int32
	Col int32
}

// Point converts an action index to a board coordinate.
func (a Action) Point(size int) Point {
	return Point{Row: int32(int(a) / size), Col: int32(int(a) % size)}
}

// PointAction converts a board coordinate to an action index.
func PointAction(p Point, size int) Action {
	return Action(int(p.Row)*size + int(p.Col))
}

// Move is one entry of the game history.
type Move struct {
	Action Action
	Player Player
}

// State is the complete position needed for rules + inference.
// ToMove selects the perspective used for encoding and value estimates.
type State struct {
	Size   int
	Cells  []Player
	ToMove Player
	// History is every move played so far, oldest first.
	History []Move
}

// NewState returns an empty board with Black to move.
func NewState(size int) *State {
	return &State{
		Size:   size,
		Cells:  make([]Player, size*size),
		ToMove: Black,
	}
}

// NumCells is the width of full-board policy vectors.
func (s *State) NumCells() int {
	return s.Size * s.Size
}

// Ply is the number of moves played.
func (s *State) Ply() int {
	return len(s.History)
}

// LastMove returns the most recent action, or NoAction on an empty board.
func (s *State) LastMove() Action {
	if len(s.History) == 0 {
		return NoAction
	}
	return s.History[len(s.History)-1].Action
}

// At returns the stone at (row, col). Out-of-range coordinates are Empty.
func (s *State) At(row, col int) Player {
	if row < 0 || row >= s.Size || col < 0 || col >= s.Size {
		return Empty
	}
	return s.Cells[row*s.Size+col]
}

// InBounds reports whether the action addresses a cell on this board.
func (s *State) InBounds(a Action) bool {
	return a >= 0 && int(a) < len(s.Cells)
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := &State{
		Size:   s.Size,
		ToMove: s.ToMove,
		Cells:  make([]Player, len(s.Cells)),
	}
	copy(out.Cells, s.Cells)

	if len(s.History) > 0 {
		out.History = make([]Move, len(s.History), len(s.History)+1)
		copy(out.History, s.History)
	}

	return out
}

// Equal reports whether two states describe the same position and side to move.
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Size != o.Size || s.ToMove != o.ToMove || len(s.History) != len(o.History) {
		return false
	}
	for i := range s.Cells {
		if s.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}

func (s *State) String() string {
	return fmt.Sprintf("size=%d ply=%d to_move=%s last=%d", s.Size, s.Ply(), s.ToMove, s.LastMove())
}
