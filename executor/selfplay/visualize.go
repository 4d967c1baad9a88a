// visualize.go - Console visualization for debugging self-play games.
//
// PrintBoard writes an ASCII board and the oracle input planes so a game can
// be followed ply by ply.
package selfplay

import (
	"fmt"
	"io"
	"strings"

	"github.com/brensch/gomoku/executor/convert"
	"github.com/brensch/gomoku/game"
)

// PrintBoard writes the board for state. When history > 0 the encoded input
// planes for the side to move follow it.
func PrintBoard(w io.Writer, state *game.State, history int) error {
	var sb strings.Builder
	last := "-"
	if a := state.LastMove(); a != game.NoAction {
		p := a.Point(state.Size)
		last = fmt.Sprintf("%d (r%d c%d)", a, p.Row, p.Col)
	}
	fmt.Fprintf(&sb, "\n=== Ply %d, %s to move, last %s ===\n", state.Ply(), state.ToMove, last)
	sb.WriteString(state.Render())

	if history > 0 {
		printEncodedLayers(&sb, state, history)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func printEncodedLayers(sb *strings.Builder, state *game.State, history int) {
	enc := convert.NewEncoder(state.Size, history)
	dataPtr := enc.Encode(state)
	data := *dataPtr
	defer enc.PutBuffer(dataPtr)

	channelName := func(c int) string {
		switch {
		case c < history:
			return fmt.Sprintf("own_t-%d", c)
		case c < 2*history:
			return fmt.Sprintf("opp_t-%d", c-history)
		case c == 2*history:
			return "last_move"
		default:
			return "colour"
		}
	}

	size := state.Size
	sb.WriteString("\n--- Encoded input layers (C,H,W) ---\n")
	for c := 0; c < enc.Channels(); c++ {
		fmt.Fprintf(sb, "Layer %d (%s):\n", c, channelName(c))
		base := c * size * size
		for row := 0; row < size; row++ {
			for col := 0; col < size; col++ {
				if data[base+row*size+col] == 0 {
					sb.WriteString(" .")
					continue
				}
				sb.WriteString(" 1")
			}
			sb.WriteString("\n")
		}
	}
}
