package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// DebugNodeRow is one node of a search tree captured after a move was chosen.
// ParentID is -1 for the root; Action is the move that led to the node.
type DebugNodeRow struct {
	GameID   string  `parquet:"game_id,dict" json:"game_id"`
	Ply      int32   `parquet:"ply" json:"ply"`
	NodeID   int32   `parquet:"node_id" json:"node_id"`
	ParentID int32   `parquet:"parent_id" json:"parent_id"`
	Depth    int32   `parquet:"depth" json:"depth"`
	Action   int32   `parquet:"action" json:"action"`
	ToMove   int32   `parquet:"to_move" json:"to_move"`
	Visits   int32   `parquet:"visits" json:"visits"`
	Q        float32 `parquet:"q" json:"q"`
	Prior    float32 `parquet:"prior" json:"prior"`
	Chosen   bool    `parquet:"chosen" json:"chosen"`
}

// DebugGameMeta describes a debug game.
type DebugGameMeta struct {
	GameID    string  `parquet:"game_id,dict" json:"game_id"`
	ModelPath string  `parquet:"model_path,dict" json:"model_path"`
	CreatedNs int64   `parquet:"created_ns" json:"created_ns"`
	Plies     int32   `parquet:"plies" json:"plies"`
	BoardSize int32   `parquet:"board_size" json:"board_size"`
	Sims      int32   `parquet:"sims" json:"sims"`
	Cpuct     float32 `parquet:"cpuct" json:"cpuct"`
	Winner    string  `parquet:"winner,dict" json:"winner"`
}

// WriteDebugGameParquet writes the captured trees of one game and returns the
// final path.
func WriteDebugGameParquet(outDir string, gameID string, rows []DebugNodeRow, meta DebugGameMeta) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("debug_%s_%d.parquet", gameID, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := finalPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", DebugSchema),
		parquet.KeyValueMetadata("winner", meta.Winner),
		parquet.KeyValueMetadata("model_path", meta.ModelPath),
		parquet.KeyValueMetadata("plies", fmt.Sprint(meta.Plies)),
		parquet.KeyValueMetadata("board_size", fmt.Sprint(meta.BoardSize)),
		parquet.KeyValueMetadata("sims", fmt.Sprint(meta.Sims)),
		parquet.KeyValueMetadata("cpuct", fmt.Sprint(meta.Cpuct)),
		parquet.KeyValueMetadata("created_ns", fmt.Sprint(meta.CreatedNs)),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadDebugGame loads the node rows of a debug file.
func ReadDebugGame(path string) ([]DebugNodeRow, error) {
	rows, err := parquet.ReadFile[DebugNodeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
