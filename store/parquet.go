// Package store writes self-play training data and debug traces as Parquet.
package store

import (
	"fmt"

	"github.com/brensch/gomoku/game"
	"github.com/parquet-go/parquet-go"
)

const (
	TrainingSchema = "selfplay_row_v1"
	DebugSchema    = "debug_game_v1"
)

// TrainingRow is one position of a self-play game.
//
// Cells holds one byte per cell in row-major order (0 empty, 1 black,
// 2 white). Policy is the visit distribution over every cell at this position.
// Value is the final outcome from ToMove's perspective: +1 win, -1 loss, 0 draw.
type TrainingRow struct {
	GameID    string    `parquet:"game_id,dict"`
	Ply       int32     `parquet:"ply"`
	BoardSize int32     `parquet:"board_size"`
	Cells     []byte    `parquet:"cells"`
	ToMove    int32     `parquet:"to_move"`
	Action    int32     `parquet:"action"`
	Policy    []float32 `parquet:"policy"`
	Value     float32   `parquet:"value"`
	Source    string    `parquet:"source,dict"`

	// ModelPath is the resolved oracle model, empty for placeholder oracles.
	ModelPath string `parquet:"model_path,dict,optional"`
	Sims      int32  `parquet:"sims"`
	// MCTSRootJSON is a summary of the visited root children:
	// JSON array of {a: action, n: visits, q: value, p: prior}.
	MCTSRootJSON []byte `parquet:"mcts_root_json,optional,zstd"`
}

// EncodeCells flattens a board for TrainingRow.Cells.
func EncodeCells(s *game.State) []byte {
	out := make([]byte, len(s.Cells))
	for i, c := range s.Cells {
		out[i] = byte(c)
	}
	return out
}

// DecodeCells rebuilds a board from TrainingRow.Cells. History is not stored,
// so the returned state only carries stones and the side to move.
func DecodeCells(size int, cells []byte, toMove game.Player) (*game.State, error) {
	if len(cells) != size*size {
		return nil, fmt.Errorf("got %d cells for a %dx%d board", len(cells), size, size)
	}
	s := game.NewState(size)
	for i, c := range cells {
		p := game.Player(c)
		if p != game.Empty && p != game.Black && p != game.White {
			return nil, fmt.Errorf("cell %d has invalid value %d", i, c)
		}
		s.Cells[i] = p
	}
	s.ToMove = toMove
	return s, nil
}

// ReadTrainingRows loads every row of a training file.
func ReadTrainingRows(path string) ([]TrainingRow, error) {
	rows, err := parquet.ReadFile[TrainingRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
