package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brensch/gomoku/game"
)

var errQuit = errors.New("quit")

// parseMove reads "row col" or "row,col", 1-based from the top-left corner.
func parseMove(line string, size int) (game.Action, error) {
	line = strings.TrimSpace(line)
	if line == "q" || line == "quit" {
		return game.NoAction, errQuit
	}
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 2 {
		return game.NoAction, fmt.Errorf("want \"row col\", got %q", line)
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return game.NoAction, fmt.Errorf("row %q: %w", fields[0], err)
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return game.NoAction, fmt.Errorf("col %q: %w", fields[1], err)
	}
	if row < 1 || row > size || col < 1 || col > size {
		return game.NoAction, fmt.Errorf("%d %d is off the %dx%d board", row, col, size, size)
	}
	return game.PointAction(game.Point{Row: int32(row - 1), Col: int32(col - 1)}, size), nil
}

// formatMove is the inverse of parseMove.
func formatMove(a game.Action, size int) string {
	p := a.Point(size)
	return fmt.Sprintf("%d %d", p.Row+1, p.Col+1)
}

// renderBoard is State.Render with 1-based row and column labels.
func renderBoard(s *game.State) string {
	var b strings.Builder
	b.WriteString("    ")
	for col := 1; col <= s.Size; col++ {
		fmt.Fprintf(&b, "%-2d", col%100)
	}
	b.WriteString("\n")
	for i, line := range strings.Split(strings.TrimRight(s.Render(), "\n"), "\n") {
		fmt.Fprintf(&b, "%3d %s\n", i+1, line)
	}
	return b.String()
}
