package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/gomoku/game"
	"github.com/stretchr/testify/require"
)

// sampleGame records a game on a size x size board: opening stones fill the
// last cells, then the recorded moves take cells 0, 1, 2 and so on.
func sampleGame(gameID string, size, opening, moves int, winner game.Player) []TrainingRow {
	s := game.NewState(size)
	cells := size * size
	for i := 0; i < opening; i++ {
		s.Cells[cells-1-i] = s.ToMove
		s.ToMove = s.ToMove.Opponent()
	}

	rows := make([]TrainingRow, moves)
	for i := range rows {
		policy := make([]float32, cells)
		policy[i] = 1
		value := float32(0)
		if winner != game.Empty {
			value = -1
			if s.ToMove == winner {
				value = 1
			}
		}
		rows[i] = TrainingRow{
			GameID:       gameID,
			Ply:          int32(opening + i),
			BoardSize:    int32(size),
			Cells:        EncodeCells(s),
			ToMove:       int32(s.ToMove),
			Action:       int32(i),
			Policy:       policy,
			Value:        value,
			Source:       "selfplay",
			Sims:         100,
			MCTSRootJSON: []byte(`[{"a":0,"n":3,"q":0.1,"p":0.5}]`),
		}
		s.Cells[i] = s.ToMove
		s.ToMove = s.ToMove.Opponent()
	}
	return rows
}

func listParquet(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	return files
}

func TestCellsRoundTrip(t *testing.T) {
	s, err := game.ParseBoard(
		"X . .",
		". O .",
		". . .",
	)
	require.NoError(t, err)

	cells := EncodeCells(s)
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 0}, cells)

	back, err := DecodeCells(3, cells, s.ToMove)
	require.NoError(t, err)
	require.Equal(t, s.Cells, back.Cells)
	require.Equal(t, game.Black, back.ToMove)

	_, err = DecodeCells(3, cells[:4], game.Black)
	require.Error(t, err)
	_, err = DecodeCells(2, []byte{0, 3, 0, 0}, game.Black)
	require.Error(t, err)
}

func TestCheckGame(t *testing.T) {
	require.NoError(t, CheckGame(sampleGame("ok", 3, 2, 4, game.Black)))
	require.NoError(t, CheckGame(sampleGame("draw", 3, 0, 9, game.Empty)))

	tests := []struct {
		name  string
		mutate func(rows []TrainingRow) []TrainingRow
	}{
		{"empty", func([]TrainingRow) []TrainingRow { return nil }},
		{"missing game id", func(r []TrainingRow) []TrainingRow {
			for i := range r {
				r[i].GameID = ""
			}
			return r
		}},
		{"two games", func(r []TrainingRow) []TrainingRow { r[2].GameID = "other"; return r }},
		{"mixed board size", func(r []TrainingRow) []TrainingRow { r[1].BoardSize = 4; return r }},
		{"short policy", func(r []TrainingRow) []TrainingRow { r[1].Policy = r[1].Policy[:4]; return r }},
		{"action out of range", func(r []TrainingRow) []TrainingRow { r[0].Action = 9; return r }},
		{"occupied cell", func(r []TrainingRow) []TrainingRow { r[1].Cells[r[1].Action] = 1; return r }},
		{"skipped ply", func(r []TrainingRow) []TrainingRow { r = append(r[:1], r[2:]...); return r }},
		{"same side twice", func(r []TrainingRow) []TrainingRow { r[1].ToMove = r[0].ToMove; return r }},
		{"value not flipped", func(r []TrainingRow) []TrainingRow { r[1].Value = r[0].Value; return r }},
		{"fractional value", func(r []TrainingRow) []TrainingRow { r[0].Value = 0.5; return r }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := tt.mutate(sampleGame("g", 3, 0, 4, game.White))
			require.ErrorIs(t, CheckGame(rows), ErrInvalidGame)
		})
	}
}

func TestBatchWriterPublishesFullFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir, 2)
	require.NoError(t, err)

	b, err := w.WriteGame(sampleGame("a", 3, 0, 3, game.Black))
	require.NoError(t, err)
	require.Nil(t, b)
	require.Empty(t, listParquet(t, dir), "nothing visible before the file is full")
	pending, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	b, err = w.WriteGame(sampleGame("b", 3, 2, 4, game.White))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, 2, b.Games)
	require.Equal(t, 7, b.Rows)
	require.Equal(t, []string{b.Path}, listParquet(t, dir))

	got, err := ReadTrainingRows(b.Path)
	require.NoError(t, err)
	require.Len(t, got, 7)
	require.Equal(t, "b", got[6].GameID)
	require.Equal(t, int32(5), got[6].Ply)

	leftovers, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestBatchWriterFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir, 10)
	require.NoError(t, err)

	b, err := w.Flush()
	require.NoError(t, err)
	require.Nil(t, b, "flush without games publishes nothing")

	_, err = w.WriteGame(sampleGame("a", 3, 0, 2, game.Empty))
	require.NoError(t, err)
	// A different board size starts a new file.
	_, err = w.WriteGame(sampleGame("b", 4, 0, 3, game.Black))
	require.NoError(t, err)
	require.Len(t, listParquet(t, dir), 1)

	b, err = w.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, b.Games)
	require.Equal(t, 3, b.Rows)
	require.Len(t, listParquet(t, dir), 2)

	b, err = w.Flush()
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestBatchWriterRejectsInvalidGame(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir, 1)
	require.NoError(t, err)

	rows := sampleGame("a", 3, 0, 3, game.Black)
	rows[2].Ply = 7
	_, err = w.WriteGame(rows)
	require.ErrorIs(t, err, ErrInvalidGame)

	b, err := w.Flush()
	require.NoError(t, err)
	require.Nil(t, b)
	require.Empty(t, listParquet(t, dir))

	_, err = NewBatchWriter(dir, 0)
	require.Error(t, err)
}

func TestDebugGameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := []DebugNodeRow{
		{GameID: "d", Ply: 0, NodeID: 0, ParentID: -1, Action: -1, ToMove: 1, Visits: 10},
		{GameID: "d", Ply: 0, NodeID: 1, ParentID: 0, Depth: 1, Action: 4, ToMove: 2, Visits: 9, Q: 0.5, Prior: 0.2, Chosen: true},
	}
	path, err := WriteDebugGameParquet(dir, "d", rows, DebugGameMeta{GameID: "d", Winner: "black"})
	require.NoError(t, err)

	got, err := ReadDebugGame(path)
	require.NoError(t, err)
	require.Equal(t, rows, got)
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()

	empty, err := Summarize(context.Background(), dir)
	require.NoError(t, err)
	require.Zero(t, empty.Games)

	w, err := NewBatchWriter(dir, 1)
	require.NoError(t, err)
	// Two opening stones precede five recorded moves.
	_, err = w.WriteGame(sampleGame("g1", 3, 2, 5, game.Black))
	require.NoError(t, err)
	_, err = w.WriteGame(sampleGame("g2", 3, 0, 2, game.Empty))
	require.NoError(t, err)
	_, err = w.WriteGame(sampleGame("g3", 3, 1, 3, game.White))
	require.NoError(t, err)

	s, err := Summarize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, s.Files)
	require.Equal(t, int64(3), s.Games)
	require.Equal(t, int64(10), s.Rows)
	require.Equal(t, int64(1), s.BlackWins)
	require.Equal(t, int64(1), s.WhiteWins)
	require.Equal(t, int64(1), s.Draws)
	require.InDelta(t, (7.0+2.0+4.0)/3, s.AvgPlies, 1e-9)
	require.InDelta(t, 10.0/3, s.AvgMoves, 1e-9)
}
