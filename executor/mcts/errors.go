package mcts

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLegalMoves is returned when a move is requested from a root that
	// has no children.
	ErrNoLegalMoves = errors.New("no legal moves")
	// ErrGameOver is returned when a move is requested for a finished game.
	ErrGameOver = errors.New("game is over")
)

// AlreadyExpandedError reports an attempt to expand a node twice.
type AlreadyExpandedError struct {
	Node  NodeID
	Depth int
}

func (e *AlreadyExpandedError) Error() string {
	return fmt.Sprintf("node %d at depth %d already expanded", e.Node, e.Depth)
}
