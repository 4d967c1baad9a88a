package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionPointRoundTrip(t *testing.T) {
	const size = 11
	for a := Action(0); a < size*size; a++ {
		p := a.Point(size)
		require.Equal(t, a, PointAction(p, size))
	}
	require.Equal(t, Point{Row: 3, Col: 1}, Action(34).Point(11))
}

func TestOpponent(t *testing.T) {
	require.Equal(t, White, Black.Opponent())
	require.Equal(t, Black, White.Opponent())
	require.Equal(t, Empty, Empty.Opponent())
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState(5)
	s.Cells[3] = Black
	s.History = append(s.History, Move{Action: 3, Player: Black})
	s.ToMove = White

	c := s.Clone()
	require.True(t, s.Equal(c))

	c.Cells[4] = White
	c.History = append(c.History, Move{Action: 4, Player: White})
	require.Equal(t, Empty, s.Cells[4], "clone must not share cells")
	require.Len(t, s.History, 1, "clone must not share history")
	require.False(t, s.Equal(c))
}

func TestParseAndRender(t *testing.T) {
	s, err := ParseBoard(
		". . .",
		". X .",
		". . O",
	)
	require.NoError(t, err)
	require.Equal(t, 2, s.Ply())
	require.Equal(t, Black, s.ToMove)
	require.Equal(t, Black, s.At(1, 1))
	require.Equal(t, White, s.At(2, 2))
	require.Equal(t, Empty, s.At(-1, 0))
	require.Equal(t, ". . .\n. X .\n. . o\n", s.Render())

	_, err = ParseBoard("X X", "X .")
	require.Error(t, err, "three black stones and no white cannot alternate")
}
