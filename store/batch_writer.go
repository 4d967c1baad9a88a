package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// ErrInvalidGame is matched by every error returned from CheckGame.
var ErrInvalidGame = errors.New("invalid game rows")

// Batch describes one published training file.
type Batch struct {
	Path  string
	Games int
	Rows  int
}

// BatchWriter packs finished games into training files of gamesPerFile games.
// A file grows under outDir/tmp and is renamed into outDir once it is full or
// flushed, so readers of outDir only ever see complete files. It is owned by a
// single goroutine.
type BatchWriter struct {
	outDir       string
	gamesPerFile int

	open *openBatch
}

type openBatch struct {
	tmpPath   string
	outPath   string
	boardSize int32
	file      *os.File
	writer    *parquet.GenericWriter[TrainingRow]
	games     int
	rows      int
}

func NewBatchWriter(outDir string, gamesPerFile int) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if gamesPerFile <= 0 {
		return nil, fmt.Errorf("games per file must be positive, got %d", gamesPerFile)
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		abs = outDir
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	return &BatchWriter{outDir: abs, gamesPerFile: gamesPerFile}, nil
}

// CheckGame reports whether rows form one recorded game: a single game id
// and board size, consecutive plies with alternating sides, a legal action
// and full-board policy per row, and a final result seen from each mover.
func CheckGame(rows []TrainingRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidGame)
	}
	first := rows[0]
	if first.GameID == "" {
		return fmt.Errorf("%w: empty game id", ErrInvalidGame)
	}
	if first.BoardSize <= 0 {
		return fmt.Errorf("%w: game %s has board size %d", ErrInvalidGame, first.GameID, first.BoardSize)
	}
	cells := int(first.BoardSize * first.BoardSize)

	for i, r := range rows {
		bad := func(format string, args ...any) error {
			return fmt.Errorf("%w: game %s ply %d: %s", ErrInvalidGame, first.GameID, r.Ply, fmt.Sprintf(format, args...))
		}
		switch {
		case r.GameID != first.GameID:
			return bad("game id %q", r.GameID)
		case r.BoardSize != first.BoardSize:
			return bad("board size %d, want %d", r.BoardSize, first.BoardSize)
		case len(r.Cells) != cells || len(r.Policy) != cells:
			return bad("%d cells and %d policy entries, want %d", len(r.Cells), len(r.Policy), cells)
		case r.Action < 0 || int(r.Action) >= cells:
			return bad("action %d out of range", r.Action)
		case r.Cells[r.Action] != 0:
			return bad("action %d on an occupied cell", r.Action)
		case r.ToMove != 1 && r.ToMove != 2:
			return bad("to_move %d", r.ToMove)
		case r.Value != 1 && r.Value != 0 && r.Value != -1:
			return bad("value %v", r.Value)
		}
		if i == 0 {
			continue
		}
		prev := rows[i-1]
		switch {
		case r.Ply != prev.Ply+1:
			return bad("follows ply %d", prev.Ply)
		case r.ToMove == prev.ToMove:
			return bad("same side to move twice")
		case r.Value != -prev.Value:
			return bad("value %v after %v", r.Value, prev.Value)
		}
	}
	return nil
}

// WriteGame checks rows with CheckGame and appends them to the open file.
// When the file reaches its game count it is published and returned.
func (b *BatchWriter) WriteGame(rows []TrainingRow) (*Batch, error) {
	if err := CheckGame(rows); err != nil {
		return nil, err
	}
	if b.open != nil && b.open.boardSize != rows[0].BoardSize {
		if _, err := b.Flush(); err != nil {
			return nil, err
		}
	}
	if b.open == nil {
		ob, err := b.openFile(rows[0].BoardSize)
		if err != nil {
			return nil, err
		}
		b.open = ob
	}

	if _, err := b.open.writer.Write(rows); err != nil {
		b.discard()
		return nil, fmt.Errorf("write game %s: %w", rows[0].GameID, err)
	}
	b.open.games++
	b.open.rows += len(rows)

	if b.open.games < b.gamesPerFile {
		return nil, nil
	}
	return b.Flush()
}

// Flush publishes the open file. It returns nil when no game is pending.
func (b *BatchWriter) Flush() (*Batch, error) {
	ob := b.open
	if ob == nil {
		return nil, nil
	}
	b.open = nil

	closeErr := ob.writer.Close()
	_ = ob.file.Sync()
	if err := errors.Join(closeErr, ob.file.Close()); err != nil {
		_ = os.Remove(ob.tmpPath)
		return nil, fmt.Errorf("close %s: %w", ob.tmpPath, err)
	}
	if err := os.Rename(ob.tmpPath, ob.outPath); err != nil {
		_ = os.Remove(ob.tmpPath)
		return nil, fmt.Errorf("publish %s: %w", ob.outPath, err)
	}
	return &Batch{Path: ob.outPath, Games: ob.games, Rows: ob.rows}, nil
}

func (b *BatchWriter) openFile(boardSize int32) (*openBatch, error) {
	name := fmt.Sprintf("batch_%d_s%d.parquet", time.Now().UnixNano(), boardSize)
	tmpPath := filepath.Join(b.outDir, "tmp", name)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	w := parquet.NewGenericWriter[TrainingRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("cells"),
	)
	w.SetKeyValueMetadata("schema", TrainingSchema)
	w.SetKeyValueMetadata("board_size", fmt.Sprint(boardSize))
	return &openBatch{
		tmpPath:   tmpPath,
		outPath:   filepath.Join(b.outDir, name),
		boardSize: boardSize,
		file:      f,
		writer:    w,
	}, nil
}

// discard drops the open file, with every game in it, after a failed write.
func (b *BatchWriter) discard() {
	if b.open == nil {
		return
	}
	_ = b.open.file.Close()
	_ = os.Remove(b.open.tmpPath)
	b.open = nil
}
